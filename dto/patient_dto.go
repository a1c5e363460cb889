package dto

import "time"

type CreatePatientDTO struct {
	FullName    string    `json:"fullName" binding:"required,min=2"`
	DateOfBirth time.Time `json:"dateOfBirth" binding:"required"`
	Gender      string    `json:"gender" binding:"required,oneof=male female other"`
	CaretakerID string    `json:"caretakerId" binding:"required"`
	NurseID     string    `json:"nurseId"`
	DoctorID    string    `json:"doctorId"`
}

// ReassignPatientDTO: all slots optional; absent slots are untouched.
type ReassignPatientDTO struct {
	CaretakerID *string `json:"caretakerId,omitempty"`
	NurseID     *string `json:"nurseId,omitempty"`
	DoctorID    *string `json:"doctorId,omitempty"`
}

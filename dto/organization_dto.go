package dto

type CreateOrganizationDTO struct {
	Name string `json:"name" binding:"required,min=2"`
}

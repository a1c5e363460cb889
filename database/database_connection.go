package database

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var (
	dbClient    *mongo.Client
	connectOnce sync.Once
)

// QueryTimeout bounds every single store call so a slow or unreachable
// Mongo surfaces as a retryable error instead of a hung request.
const QueryTimeout = 5 * time.Second

func Connect() *mongo.Client {
	connectOnce.Do(func() {
		serverAPI := options.ServerAPI(options.ServerAPIVersion1)
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
		uri := os.Getenv("MONGODB_URI")
		opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI).
			SetTimeout(QueryTimeout)
		client, err := mongo.Connect(opts)
		if err != nil {
			panic(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), QueryTimeout)
		defer cancel()
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			panic(err)
		}
		log.Println("Connected to MongoDB")
		dbClient = client
	})
	return dbClient
}

func OpenCollection(collectionName string) *mongo.Collection {
	client := Connect()
	databaseName := os.Getenv("DATABASE_NAME")
	return client.Database(databaseName).Collection(collectionName)
}

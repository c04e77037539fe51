package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DevEncryptionKey is the fallback passphrase for non-production environments.
// It must never be reachable in production; Get treats its presence there as a
// deployment configuration error.
const DevEncryptionKey = "configvault-dev-only-key"

// This function will Load the ENVIRONMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string
	// Secrets vault configuration
	SECRETS_ENCRYPTION_KEY  string
	SECRETS_ENCRYPTION_SALT string
}

func Get() (*EnvironmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	goEnv := os.Getenv("GO_ENV")

	encryptionKey := os.Getenv("SECRETS_ENCRYPTION_KEY")
	if encryptionKey == "" {
		if goEnv == "production" {
			return nil, fmt.Errorf("SECRETS_ENCRYPTION_KEY must be set in production")
		}
		encryptionKey = DevEncryptionKey
	}

	encryptionSalt := os.Getenv("SECRETS_ENCRYPTION_SALT")
	if encryptionSalt == "" {
		// Salt only needs to be deployment-stable, not secret
		encryptionSalt = "configvault-key-derivation-salt"
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:       goEnv,
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       os.Getenv("REDIS_DB"),
		// Secrets vault
		SECRETS_ENCRYPTION_KEY:  encryptionKey,
		SECRETS_ENCRYPTION_SALT: encryptionSalt,
	}

	return envVariables, nil
}

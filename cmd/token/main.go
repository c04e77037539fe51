package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/tenantcore/configvault/utils/auth"
)

// Mints a JWT for local development and testing, since this service validates
// tokens but normally receives them from the surrounding platform.
func main() {
	email := flag.String("email", "dev@localhost", "email recorded as the actor identity")
	role := flag.String("role", "admin", "role claim (admin unlocks reveal routes)")
	expiry := flag.Duration("expiry", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "configvault-api"
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret:        secret,
		Expiry:        *expiry,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        issuer,
	})

	token, jti, err := jwtManager.GenerateAccessToken(0, *email, *role)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Printf("Token (jti=%s, expires in %s):\n%s\n", jti, *expiry, token)
}

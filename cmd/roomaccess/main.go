// @title           Room Access API
// @version         1.0
// @description     Issue and return of room keys, microphones and remotes, gated by room permissions and approved by a concierge.

// @BasePath  /api/v1

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Enter the token as "Bearer <token>"
package main

import (
	"github.com/joho/godotenv"

	"github.com/tbourn/room-access-backend/internal/cli"
)

func main() {
	// A missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	cli.Execute()
}

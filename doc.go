// Command pictureteam serves the Picture Team image-sharing API.
//
// Users register and log in with an e-mail and password, create images
// with a title, description and categories, upload the binary once, and
// rate other users' images. Administrators manage the category list.
//
// Example usage:
//
//	go run .
//	go run ./cmd/ptutil migrate
//	go run ./cmd/ptutil promote someone@example.com
//
// Configuration:
//
//	See config/config.json; PT_* environment variables and a .env file
//	override it, and PT_CONFIG points at another file.
//
// Routes are registered in internal/api/handler.go.
package main

package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/vitrina/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	publicHandler := &PublicHandler{DB: db}
	usersHandler := &UsersHandler{DB: db}
	locationsHandler := &LocationsHandler{DB: db}
	boxesHandler := &BoxesHandler{DB: db}
	itemsHandler := &ItemsHandler{DB: db}
	movementsHandler := &MovementsHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireVolunteer := RequireRole(model.RoleVolunteer)

	member := func(h http.HandlerFunc) http.Handler { return authMW(requireVolunteer(h)) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public: login and catalogue.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/public/items", publicHandler.List)
	mux.HandleFunc("GET /api/public/items/{id}", publicHandler.Get)
	mux.HandleFunc("GET /api/public/items/{id}/image", publicHandler.GetImage)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", member(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", member(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", admin(usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Locations and boxes: read (volunteer+), write (admin).
	mux.Handle("GET /api/locations", member(locationsHandler.List))
	mux.Handle("POST /api/locations", admin(locationsHandler.Create))
	mux.Handle("GET /api/locations/{id}", member(locationsHandler.Get))
	mux.Handle("PUT /api/locations/{id}", admin(locationsHandler.Update))
	mux.Handle("DELETE /api/locations/{id}", admin(locationsHandler.Delete))

	mux.Handle("GET /api/boxes", member(boxesHandler.List))
	mux.Handle("POST /api/boxes", admin(boxesHandler.Create))
	mux.Handle("GET /api/boxes/{id}", member(boxesHandler.Get))
	mux.Handle("PUT /api/boxes/{id}", admin(boxesHandler.Update))
	mux.Handle("DELETE /api/boxes/{id}", admin(boxesHandler.Delete))

	// Items: read (volunteer+), write (admin).
	mux.Handle("GET /api/items", member(itemsHandler.List))
	mux.Handle("POST /api/items", admin(itemsHandler.Create))
	mux.Handle("GET /api/items/{id}", member(itemsHandler.Get))
	mux.Handle("PUT /api/items/{id}", admin(itemsHandler.Update))
	mux.Handle("DELETE /api/items/{id}", admin(itemsHandler.Delete))
	mux.Handle("GET /api/items/{id}/history", member(itemsHandler.GetHistory))
	mux.Handle("GET /api/items/{id}/location", member(itemsHandler.GetLocation))
	mux.Handle("POST /api/items/{id}/verify", admin(itemsHandler.Verify))
	mux.Handle("POST /api/items/{id}/correct-location", admin(itemsHandler.CorrectLocation))
	mux.Handle("PUT /api/items/{id}/image", admin(itemsHandler.UploadImage))
	mux.Handle("GET /api/items/{id}/image", member(itemsHandler.GetImage))

	// Movement requests.
	mux.Handle("GET /api/movements", member(movementsHandler.List))
	mux.Handle("POST /api/movements", member(movementsHandler.Create))
	mux.Handle("POST /api/movements/bulk", admin(movementsHandler.Bulk))
	mux.Handle("GET /api/movements/{id}", member(movementsHandler.Get))
	mux.Handle("POST /api/movements/{id}/approve", admin(movementsHandler.Approve))
	mux.Handle("POST /api/movements/{id}/reject", admin(movementsHandler.Reject))
	mux.Handle("POST /api/movements/{id}/cancel", member(movementsHandler.Cancel))
	mux.Handle("POST /api/movements/{id}/start-transit", member(movementsHandler.StartTransit))
	mux.Handle("POST /api/movements/{id}/complete-arrival", member(movementsHandler.CompleteArrival))

	return mux
}

package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/token"
)

type seedUser struct {
	name string
	role string
}

// Seeds demo users and sessions, and prints bearer tokens for trying the API
// locally. Credentials themselves live with the identity provider; this only
// fills the roster the snapshot endpoint counts against.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	users := []seedUser{
		{"Admin User", auth.RoleAdmin},
		{"John Smith", auth.RoleInstructor},
		{"Alice Brown", auth.RoleTrainee},
		{"Bob Wilson", auth.RoleTrainee},
		{"Carol Davis", auth.RoleTrainee},
	}

	for _, u := range users {
		id := uuid.NewString()
		_, err := db.Client.ExecContext(ctx, `
			INSERT INTO users (id, name, role, created_at)
			VALUES ($1, $2, $3, NOW())
		`, id, u.name, u.role)
		if err != nil {
			log.Fatalf("seed user %q failed: %v", u.name, err)
		}
		bearer, exp, err := auth.Issue(id, u.role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			log.Fatalf("token issue for %q failed: %v", u.name, err)
		}
		log.Printf("%-12s %-10s id=%s", u.name, u.role, id)
		log.Printf("  bearer (expires %s): %s", exp.Format(time.RFC3339), bearer)
	}

	registry := session.NewRegistry(session.NewRepo(db.Client))
	tokens := token.NewManager(token.NewRepo(db.Client), registry, cfg.TokenTTL)

	now := time.Now().UTC()
	specs := []session.CreateSpec{
		{Title: "Go Fundamentals", Description: "Intro workshop", StartTime: now.Add(10 * time.Minute), EndTime: now.Add(2 * time.Hour)},
		{Title: "Concurrency Patterns", Description: "Afternoon deep dive", StartTime: now.Add(3 * time.Hour), EndTime: now.Add(5 * time.Hour)},
	}
	for _, spec := range specs {
		s, err := registry.Create(ctx, spec)
		if err != nil {
			log.Fatalf("seed session %q failed: %v", spec.Title, err)
		}
		t, err := tokens.Issue(ctx, s.ID, true)
		if err != nil {
			log.Fatalf("token for session %q failed: %v", spec.Title, err)
		}
		log.Printf("session %q id=%s code=%s expires=%s", s.Title, s.ID, t.Value, t.ExpiresAt.Format(time.RFC3339))
	}

	log.Println("seed complete")
}

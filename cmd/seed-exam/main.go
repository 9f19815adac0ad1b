package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/provalia/cbt-backend/internal/config"
	"github.com/provalia/cbt-backend/internal/database"
	"github.com/provalia/cbt-backend/internal/logger"
	"github.com/provalia/cbt-backend/internal/model"
	"github.com/provalia/cbt-backend/internal/repository"
	"github.com/provalia/cbt-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// Seeds a demo proctor, a demo candidate, and a published two-section exam
// so a fresh install can run an end-to-end attempt immediately.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	proctorRepo := repository.NewProctorRepository(pool)
	candidateRepo := repository.NewCandidateRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	examService := service.NewExamService(cfg, examRepo, rdb, log)

	fmt.Println("=== Seeding Demo Exam ===")

	// ─── Proctor ───────────────────────────────────────────────────────
	proctor, err := proctorRepo.GetByEmail(ctx, "demo.proctor@example.com")
	if err != nil {
		if err != pgx.ErrNoRows {
			log.Fatal().Err(err).Msg("Failed to check existing proctor")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte("proctor123"), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		proctor = &model.Proctor{
			Email:        "demo.proctor@example.com",
			Name:         "Demo Proctor",
			PasswordHash: string(hash),
		}
		if err := proctorRepo.Create(ctx, proctor); err != nil {
			log.Fatal().Err(err).Msg("Failed to create proctor")
		}
		fmt.Printf("Created proctor with ID: %d\n", proctor.ID)
	} else {
		fmt.Printf("Found existing proctor with ID: %d\n", proctor.ID)
	}

	// ─── Candidate ─────────────────────────────────────────────────────
	if _, err := candidateRepo.GetByUsername(ctx, "demo.candidate"); err != nil {
		if err != pgx.ErrNoRows {
			log.Fatal().Err(err).Msg("Failed to check existing candidate")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte("candidate123"), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		candidate := &model.Candidate{
			Username:     "demo.candidate",
			Name:         "Demo Candidate",
			PasswordHash: string(hash),
		}
		if err := candidateRepo.Create(ctx, candidate); err != nil {
			log.Fatal().Err(err).Msg("Failed to create candidate")
		}
		fmt.Printf("Created candidate with ID: %d\n", candidate.ID)
	} else {
		fmt.Println("Found existing candidate demo.candidate")
	}

	// ─── Exam ──────────────────────────────────────────────────────────
	exam := &model.Exam{
		Title:           "General Science Demo",
		AuthorID:        proctor.ID,
		DurationSeconds: 1800,
		EntryToken:      "DEMO2026",
	}
	if err := examService.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s\n", exam.ID)

	sections := []model.AddSectionRequest{
		{ID: "PHY", Title: "Physics", OrderNum: 1},
		{ID: "CHEM", Title: "Chemistry", OrderNum: 2},
	}
	if err := examService.ReplaceSections(ctx, exam.ID, proctor.ID, sections); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed sections")
	}

	choice := func(opts ...string) json.RawMessage {
		raw, _ := json.Marshal(opts)
		return raw
	}
	questions := []model.AddQuestionRequest{
		{SectionID: "PHY", Type: "SINGLE_CHOICE", PromptHTML: "<p>What is the SI unit of force?</p>", Options: choice("Newton", "Joule", "Watt", "Pascal"), OrderNum: 1},
		{SectionID: "PHY", Type: "NUMERIC", PromptHTML: "<p>A body accelerates at 2 m/s² under a 10 N force. What is its mass in kg?</p>", OrderNum: 2},
		{SectionID: "PHY", Type: "MULTI_CHOICE", PromptHTML: "<p>Which of these are vector quantities?</p>", Options: choice("Velocity", "Speed", "Displacement", "Mass"), OrderNum: 3},
		{SectionID: "CHEM", Type: "SINGLE_CHOICE", PromptHTML: "<p>What is the chemical symbol for sodium?</p>", Options: choice("So", "Na", "Sd", "Nm"), OrderNum: 4},
		{SectionID: "CHEM", Type: "MATCHING", PromptHTML: "<p>Match each element to its group.</p>", Options: choice("Helium", "Lithium", "Fluorine"), OrderNum: 5},
	}
	if err := examService.ReplaceQuestions(ctx, exam.ID, proctor.ID, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed questions")
	}

	if err := examService.Publish(ctx, exam.ID, proctor.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish exam")
	}

	fmt.Printf("\nSuccess! Exam '%s' published with entry token %s\n", exam.Title, exam.EntryToken)
	fmt.Println("Login: demo.candidate / candidate123")
}

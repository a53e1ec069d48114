package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/mocktest-backend/internal/config"
	"github.com/stemsi/mocktest-backend/internal/database"
	"github.com/stemsi/mocktest-backend/internal/logger"
	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/repository"
)

func choice(prompt string, correct int, explanation string, options ...string) model.Question {
	return model.Question{
		Kind:     model.TestKindAptitude,
		Category: "quantitative",
		Level:    1,
		Choice:   &model.ChoiceBody{Prompt: prompt, Options: options, Correct: correct, Explanation: explanation},
	}
}

func openEnded(kind model.TestKind, category, title, description string) model.Question {
	return model.Question{
		Kind:     kind,
		Category: category,
		Level:    1,
		Open:     &model.OpenBody{Title: title, Description: description},
	}
}

var sampleBank = []model.Question{
	choice("A train travels 120 km in 2 hours. What is its average speed?", 1, "120 / 2 = 60 km/h.",
		"50 km/h", "60 km/h", "70 km/h", "80 km/h"),
	choice("What is 15% of 200?", 2, "0.15 x 200 = 30.",
		"20", "25", "30", "35"),
	choice("If 3x + 5 = 20, what is x?", 0, "3x = 15, so x = 5.",
		"5", "6", "4", "7"),
	choice("Which number comes next: 2, 6, 12, 20, ?", 3, "Differences grow by 2: 4, 6, 8, 10.",
		"24", "26", "28", "30"),
	choice("A shirt costs 800 after a 20% discount. What was the original price?", 1, "800 / 0.8 = 1000.",
		"960", "1000", "1040", "1200"),

	openEnded(model.TestKindTechnical, "go", "Explain goroutines and channels",
		"Describe how goroutines are scheduled and when you would use a buffered channel."),
	openEnded(model.TestKindTechnical, "databases", "Design an index",
		"Given a table of orders queried by customer and date range, which index would you add and why?"),
	openEnded(model.TestKindTechnical, "networking", "What happens when you type a URL",
		"Walk through DNS resolution, TCP and TLS setup, and the HTTP request."),

	openEnded(model.TestKindGD, "technology", "Remote work is here to stay",
		"Argue for or against permanent remote work for software teams."),
	openEnded(model.TestKindGD, "society", "Social media does more harm than good",
		"Discuss the effect of social media on public discourse."),
	openEnded(model.TestKindGD, "education", "Degrees matter less than skills",
		"Should hiring focus on portfolios instead of formal qualifications?"),
}

func main() {
	force := flag.Bool("force", false, "Seed even when the bank already has questions")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questionRepo := repository.NewQuestionRepository(pool)

	var existing int
	err = pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM aptitude_questions) +
		(SELECT COUNT(*) FROM technical_questions) +
		(SELECT COUNT(*) FROM gd_topics)`).Scan(&existing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count existing questions")
	}
	if existing > 0 && !*force {
		fmt.Printf("Question bank already has %d questions. Use -force to add the samples anyway.\n", existing)
		return
	}

	fmt.Printf("=== Seeding %d Questions ===\n", len(sampleBank))

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := range sampleBank {
			q := sampleBank[i]
			if err := questionRepo.CreateTx(ctx, tx, &q); err != nil {
				return fmt.Errorf("create %s question %d: %w", q.Kind, i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed, nothing was written")
	}

	counts := map[model.TestKind]int{}
	for _, q := range sampleBank {
		counts[q.Kind]++
	}
	for _, kind := range model.AllTestKinds {
		fmt.Printf("  %-10s %d\n", kind, counts[kind])
	}
	fmt.Println("\nSeed completed! Flush the bank cache (bank:*:questions) or wait for its TTL.")
}

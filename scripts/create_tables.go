package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Standalone schema bootstrap for deployments where the service account has
// no DDL rights at boot and AutoMigrate cannot run. Mirrors the gorm models.
func main() {
	fmt.Println("Creating ragbench database tables...")

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=ragbench password=ragbench dbname=ragbench sslmode=disable"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	fmt.Println("✅ Connected to database")

	statements := []struct {
		name string
		sql  string
	}{
		{"pgcrypto extension", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
		{"users table", `CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT NOT NULL UNIQUE,
			name TEXT,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"workspaces table", `CREATE TABLE IF NOT EXISTS workspaces (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner_id UUID NOT NULL,
			name TEXT NOT NULL,
			embedding_provider TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			embedding_dimension INTEGER NOT NULL DEFAULT 0,
			chunk_size INTEGER NOT NULL,
			chunk_overlap INTEGER NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"workspaces owner index", `CREATE INDEX IF NOT EXISTS idx_workspaces_owner_id ON workspaces(owner_id)`},
		{"documents table", `CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			file_name TEXT NOT NULL,
			content_type TEXT NOT NULL,
			source_path TEXT NOT NULL,
			size_bytes BIGINT,
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP WITH TIME ZONE
		)`},
		{"documents workspace index", `CREATE INDEX IF NOT EXISTS idx_documents_workspace_id ON documents(workspace_id)`},
		{"documents status index", `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`},
		{"chunks table", `CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"chunks document index", `CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`},
		{"test_datasets table", `CREATE TABLE IF NOT EXISTS test_datasets (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"test_questions table", `CREATE TABLE IF NOT EXISTS test_questions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			dataset_id UUID NOT NULL REFERENCES test_datasets(id) ON DELETE CASCADE,
			question_index INTEGER NOT NULL,
			question_text TEXT NOT NULL,
			expected_answer TEXT,
			context_reference TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"evaluations table", `CREATE TABLE IF NOT EXISTS evaluations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			dataset_id UUID NOT NULL,
			owner_id UUID NOT NULL,
			name TEXT,
			candidates JSONB NOT NULL DEFAULT '[]',
			judge_provider TEXT NOT NULL,
			judge_model TEXT NOT NULL,
			settings JSONB,
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP WITH TIME ZONE
		)`},
		{"evaluations dataset index", `CREATE INDEX IF NOT EXISTS idx_evaluations_dataset_id ON evaluations(dataset_id)`},
		{"model_results table", `CREATE TABLE IF NOT EXISTS model_results (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			evaluation_id UUID NOT NULL,
			question_id UUID NOT NULL,
			question_index INTEGER NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			candidate_index INTEGER NOT NULL,
			generated_answer TEXT,
			retrieved_context TEXT,
			latency_ms BIGINT,
			cost_usd DOUBLE PRECISION,
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			error TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"model_results evaluation index", `CREATE INDEX IF NOT EXISTS idx_model_results_evaluation_id ON model_results(evaluation_id)`},
		{"question_metrics table", `CREATE TABLE IF NOT EXISTS question_metrics (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			evaluation_id UUID NOT NULL,
			model_result_id UUID NOT NULL UNIQUE,
			accuracy DOUBLE PRECISION,
			accuracy_note TEXT,
			faithfulness DOUBLE PRECISION,
			faithfulness_note TEXT,
			reasoning DOUBLE PRECISION,
			reasoning_note TEXT,
			context_utilization DOUBLE PRECISION,
			context_note TEXT,
			raw_verdicts JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"evaluation_summaries table", `CREATE TABLE IF NOT EXISTS evaluation_summaries (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			evaluation_id UUID NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			candidate_index INTEGER NOT NULL,
			rank INTEGER,
			mean_accuracy DOUBLE PRECISION,
			mean_faithfulness DOUBLE PRECISION,
			mean_reasoning DOUBLE PRECISION,
			mean_context_utilization DOUBLE PRECISION,
			mean_latency_ms DOUBLE PRECISION,
			mean_cost_usd DOUBLE PRECISION,
			total_cost_usd DOUBLE PRECISION,
			overall_score DOUBLE PRECISION,
			total_count INTEGER,
			successful_count INTEGER,
			failed_count INTEGER,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`},
		{"evaluation_summaries evaluation index", `CREATE INDEX IF NOT EXISTS idx_evaluation_summaries_evaluation_id ON evaluation_summaries(evaluation_id)`},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.sql); err != nil {
			log.Fatalf("Failed to create %s: %v", stmt.name, err)
		}
		fmt.Printf("✅ Created %s\n", stmt.name)
	}

	fmt.Println("✅ All tables created")
}

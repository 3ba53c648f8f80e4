package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS exams (
	exam_id             TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	created_by          TEXT NOT NULL,
	duration_minutes    INTEGER NOT NULL CHECK (duration_minutes > 0),
	anytime             BOOLEAN NOT NULL DEFAULT TRUE,
	start_at            TIMESTAMPTZ,
	end_at              TIMESTAMPTZ,
	randomize_questions BOOLEAN NOT NULL DEFAULT FALSE,
	pass_percentage     NUMERIC(5, 2) NOT NULL DEFAULT 0,
	deleted             BOOLEAN NOT NULL DEFAULT FALSE,
	version             INTEGER NOT NULL DEFAULT 1,
	create_time         TIMESTAMPTZ NOT NULL,
	update_time         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	question_id    TEXT PRIMARY KEY,
	exam_id        TEXT NOT NULL REFERENCES exams (exam_id),
	type           TEXT NOT NULL,
	prompt         JSONB NOT NULL,
	options        JSONB NOT NULL,
	correct_answer JSONB NOT NULL,
	points         NUMERIC(10, 2) NOT NULL CHECK (points >= 0),
	position       INTEGER NOT NULL,
	version        INTEGER NOT NULL DEFAULT 1,
	create_time    TIMESTAMPTZ NOT NULL,
	update_time    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS questions_exam_position_idx ON questions (exam_id, position);

CREATE TABLE IF NOT EXISTS participants (
	participant_id TEXT PRIMARY KEY,
	exam_id        TEXT NOT NULL REFERENCES exams (exam_id),
	user_id        TEXT NOT NULL,
	access_code    TEXT NOT NULL UNIQUE,
	is_used        BOOLEAN NOT NULL DEFAULT FALSE,
	create_time    TIMESTAMPTZ NOT NULL,
	UNIQUE (exam_id, user_id)
);

CREATE TABLE IF NOT EXISTS attempts (
	attempt_id             TEXT PRIMARY KEY,
	exam_id                TEXT NOT NULL REFERENCES exams (exam_id),
	participant_id         TEXT NOT NULL REFERENCES participants (participant_id),
	user_id                TEXT NOT NULL,
	status                 TEXT NOT NULL,
	started_at             TIMESTAMPTZ NOT NULL,
	submitted_at           TIMESTAMPTZ,
	abandoned_at           TIMESTAMPTZ,
	last_activity_at       TIMESTAMPTZ NOT NULL,
	time_remaining         INTEGER NOT NULL CHECK (time_remaining >= 0),
	current_question_index INTEGER NOT NULL DEFAULT 0,
	question_ids           TEXT[] NOT NULL,
	question_order         INTEGER[] NOT NULL,
	answered_questions     INTEGER[] NOT NULL DEFAULT '{}',
	answers                JSONB NOT NULL DEFAULT '{}',
	score                  NUMERIC(12, 2) NOT NULL DEFAULT 0,
	max_score              NUMERIC(12, 2) NOT NULL DEFAULT 0,
	percentage             NUMERIC(5, 1) NOT NULL DEFAULT 0,
	passed                 BOOLEAN NOT NULL DEFAULT FALSE,
	grades                 JSONB NOT NULL DEFAULT '[]',
	UNIQUE (exam_id, user_id),
	CHECK (score <= max_score)
);

CREATE INDEX IF NOT EXISTS attempts_exam_status_idx ON attempts (exam_id, status);
CREATE INDEX IF NOT EXISTS attempts_user_idx ON attempts (user_id, started_at DESC);
`

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}

	return nil
}

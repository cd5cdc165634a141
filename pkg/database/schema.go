package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"chat_messages":     "AI tutor conversation history",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures the scan order used by the
// chat store lines up with what is actually on disk
func (v *SchemaValidator) ValidateTableStructure() error {
	chatColumns := map[string]string{
		"id":              "TEXT",
		"conversation_id": "TEXT",
		"sender":          "TEXT",
		"content":         "TEXT",
		"from_user":       "INTEGER",
		"file_url":        "TEXT",
		"file_name":       "TEXT",
		"mime_type":       "TEXT",
		"timestamp":       "DATETIME",
	}

	if err := v.validateColumns("chat_messages", chatColumns); err != nil {
		return fmt.Errorf("chat_messages table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_chat_messages_conversation_time": "Conversation history retrieval",
		"idx_chat_messages_sender":            "Per-sender lookups",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO chat_messages (id, conversation_id, sender, content, from_user, timestamp)
		VALUES ('constraint-check', '', 'check', 'x', 0, CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM chat_messages WHERE id = 'constraint-check'")
		return fmt.Errorf("check constraint not enforced: chat_messages.conversation_id")
	}

	_, err = v.db.Exec(`
		INSERT INTO chat_messages (id, conversation_id, sender, content, from_user, timestamp)
		VALUES ('constraint-check', 'check', 'check', 'x', 7, CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM chat_messages WHERE id = 'constraint-check'")
		return fmt.Errorf("check constraint not enforced: chat_messages.from_user")
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, expectedType := range expectedColumns {
		foundType, ok := foundColumns[col]
		if !ok {
			return fmt.Errorf("column %s not found", col)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", col, foundType, expectedType)
		}
	}

	return nil
}

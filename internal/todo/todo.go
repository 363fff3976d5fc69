// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package todo is a minimal dataset implementing the client record
// Handler capability, grounded on the reference implementation's
// bundled todo-list demo.
package todo

import (
	"fmt"
	"strconv"

	"github.com/reconsync/reconsync/internal/client"
	"github.com/reconsync/reconsync/internal/message"
)

// TableName is the dataset name todos are stored under.
const TableName = "todos"

// Todo is one row: a free-text item with a type tag and a tombstone
// flag standing in for a real delete.
type Todo struct {
	ID        string
	Content   string
	TodoType  string
	Tombstone int
}

// HandleMessage applies one field mutation, matching the three columns
// the reference todo demo defines.
func (t *Todo) HandleMessage(msg message.Message) error {
	switch msg.Column {
	case "content":
		t.Content = msg.Value
	case "todo_type":
		t.TodoType = msg.Value
	case "tombstone":
		v, err := strconv.Atoi(msg.Value)
		if err != nil {
			return fmt.Errorf("todo: parse tombstone value %q: %w", msg.Value, err)
		}
		t.Tombstone = v
	default:
		return fmt.Errorf("todo: unknown column %q", msg.Column)
	}
	return nil
}

// Handler implements client.Handler for the todos dataset.
type Handler struct{}

func (Handler) NewRecord(row string) client.Record {
	return &Todo{ID: row}
}

func (Handler) TableName() string {
	return TableName
}

// InsertFields builds the field set for Syncer.Insert: no id, so both
// fields are assigned the newly allocated row id.
func InsertFields(content, todoType string) []client.Field {
	return []client.Field{
		{Column: "content", ValueType: message.ValueString, Value: content},
		{Column: "todo_type", ValueType: message.ValueString, Value: todoType},
	}
}

// UpdateFields builds the field set for Syncer.Update against an
// existing row id.
func UpdateFields(id string, content, todoType string) []client.Field {
	return []client.Field{
		{ID: &id, Column: "content", ValueType: message.ValueString, Value: content},
		{ID: &id, Column: "todo_type", ValueType: message.ValueString, Value: todoType},
	}
}

package todo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsync/reconsync/internal/message"
)

func TestHandleMessageSetsFields(t *testing.T) {
	item := &Todo{ID: "row1"}

	require.NoError(t, item.HandleMessage(message.Message{Column: "content", Value: "buy milk"}))
	require.NoError(t, item.HandleMessage(message.Message{Column: "todo_type", Value: "grocery"}))
	require.NoError(t, item.HandleMessage(message.Message{Column: "tombstone", Value: "1"}))

	assert.Equal(t, "buy milk", item.Content)
	assert.Equal(t, "grocery", item.TodoType)
	assert.Equal(t, 1, item.Tombstone)
}

func TestHandleMessageUnknownColumn(t *testing.T) {
	item := &Todo{ID: "row1"}
	err := item.HandleMessage(message.Message{Column: "bogus", Value: "x"})
	assert.Error(t, err)
}

func TestHandleMessageBadTombstoneValue(t *testing.T) {
	item := &Todo{ID: "row1"}
	err := item.HandleMessage(message.Message{Column: "tombstone", Value: "not-a-number"})
	assert.Error(t, err)
}

func TestHandlerNewRecord(t *testing.T) {
	h := Handler{}
	assert.Equal(t, TableName, h.TableName())

	rec := h.NewRecord("row1")
	todoRec, ok := rec.(*Todo)
	require.True(t, ok)
	assert.Equal(t, "row1", todoRec.ID)
}

func TestInsertAndUpdateFields(t *testing.T) {
	insertFields := InsertFields("buy milk", "grocery")
	assert.Len(t, insertFields, 2)
	for _, f := range insertFields {
		assert.Nil(t, f.ID)
	}

	updateFields := UpdateFields("row1", "buy bread", "grocery")
	assert.Len(t, updateFields, 2)
	for _, f := range updateFields {
		require.NotNil(t, f.ID)
		assert.Equal(t, "row1", *f.ID)
	}
}

package builtin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTodo(t *testing.T) *TodoAction {
	t.Helper()
	a := &TodoAction{
		Path: filepath.Join(t.TempDir(), "nested", "todo.db"),
		Now:  func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) },
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func todo(t *testing.T, a *TodoAction, input string) map[string]interface{} {
	t.Helper()
	raw, err := a.Execute(context.Background(), json.RawMessage(input))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestTodoLifecycle(t *testing.T) {
	a := newTodo(t)

	added := todo(t, a, `{"operation":"add","title":"Practice system design"}`)
	item := added["added"].(map[string]interface{})
	assert.Equal(t, float64(1), item["id"])
	assert.Equal(t, "Practice system design", item["title"])

	todo(t, a, `{"operation":"add","task":"Update resume"}`)

	listed := todo(t, a, `{"operation":"list"}`)
	assert.Equal(t, float64(2), listed["pending"])
	require.Len(t, listed["todos"], 2)

	todo(t, a, `{"operation":"complete","id":1}`)
	listed = todo(t, a, `{}`)
	assert.Equal(t, float64(1), listed["pending"])
	first := listed["todos"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, true, first["done"])
	assert.Equal(t, "2024-06-01T09:00:00Z", first["completed_at"])

	todo(t, a, `{"operation":"remove","id":2}`)
	listed = todo(t, a, `{"operation":"list"}`)
	require.Len(t, listed["todos"], 1)
}

func TestTodoPersistsAcrossReopen(t *testing.T) {
	a := newTodo(t)
	todo(t, a, `{"operation":"add","title":"Mock interview Friday"}`)
	require.NoError(t, a.Close())

	reopened := &TodoAction{Path: a.Path}
	t.Cleanup(func() { _ = reopened.Close() })
	listed := todo(t, reopened, `{"operation":"list"}`)
	require.Len(t, listed["todos"], 1)
}

func TestTodoErrors(t *testing.T) {
	a := newTodo(t)

	_, err := a.Execute(context.Background(), json.RawMessage(`{"operation":"add"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"operation":"complete","id":42}`))
	assert.ErrorIs(t, err, kerrors.ErrNotFound)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"operation":"remove"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"operation":"archive"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)
}

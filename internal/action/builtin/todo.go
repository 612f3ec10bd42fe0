package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/action"
	kerrors "github.com/harunnryd/kiki/internal/errors"

	_ "modernc.org/sqlite"
)

const todoSchema = `
CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	done INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	completed_at TEXT
)`

func init() {
	action.RegisterBuiltin("manageTodo", func(options action.BuiltinOptions) (action.Action, error) {
		path := strings.TrimSpace(options.TodoDBPath)
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve todo db path: %w", err)
			}
			path = filepath.Join(home, ".kiki", "workspace", "todo.db")
		}
		return &TodoAction{Path: path, Now: options.Clock()}, nil
	})
}

// TodoAction manages a todo list persisted in SQLite. The database is opened on first use.
type TodoAction struct {
	Path string
	Now  func() time.Time

	mu sync.Mutex
	db *sql.DB
}

type todoItem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Done        bool   `json:"done"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func (a *TodoAction) Name() string { return "manageTodo" }

func (a *TodoAction) Aliases() []string { return []string{"todo", "todos"} }

func (a *TodoAction) Description() string {
	return "Manage the user's todo list: add an item, list items, complete or remove an item by id."
}

func (a *TodoAction) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "list", "complete", "remove"},
				"description": "What to do, defaults to list",
			},
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Item text for add",
			},
			"id": map[string]interface{}{
				"type":        "integer",
				"description": "Item id for complete and remove",
			},
		},
	}
}

type todoArgs struct {
	Operation string `json:"operation"`
	Title     string `json:"title"`
	Task      string `json:"task"`
	ID        int64  `json:"id"`
}

func (a *TodoAction) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args todoArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, kerrors.InvalidInput(err.Error())
	}

	db, err := a.open()
	if err != nil {
		return nil, err
	}

	var result interface{}
	switch strings.ToLower(strings.TrimSpace(args.Operation)) {
	case "", "list":
		result, err = a.list(ctx, db)
	case "add":
		title := strings.TrimSpace(args.Title)
		if title == "" {
			title = strings.TrimSpace(args.Task)
		}
		result, err = a.add(ctx, db, title)
	case "complete":
		result, err = a.complete(ctx, db, args.ID)
	case "remove":
		result, err = a.remove(ctx, db, args.ID)
	default:
		return nil, kerrors.InvalidInput(fmt.Sprintf("unknown todo operation %q", args.Operation))
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (a *TodoAction) open() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return a.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return nil, fmt.Errorf("create todo db directory: %w", err)
	}

	db, err := sql.Open("sqlite", a.Path)
	if err != nil {
		return nil, fmt.Errorf("open todo db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(todoSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate todo db: %w", err)
	}

	a.db = db
	return db, nil
}

func (a *TodoAction) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *TodoAction) now() string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (a *TodoAction) add(ctx context.Context, db *sql.DB, title string) (interface{}, error) {
	if title == "" {
		return nil, kerrors.InvalidInput("title is required to add a todo")
	}

	createdAt := a.now()
	res, err := db.ExecContext(ctx, `INSERT INTO todos (title, created_at) VALUES (?, ?)`, title, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert todo: %w", err)
	}

	return map[string]interface{}{
		"added": todoItem{ID: id, Title: title, CreatedAt: createdAt},
	}, nil
}

func (a *TodoAction) list(ctx context.Context, db *sql.DB) (interface{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, title, done, created_at, COALESCE(completed_at, '') FROM todos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	items := []todoItem{}
	pending := 0
	for rows.Next() {
		var item todoItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Done, &item.CreatedAt, &item.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		if !item.Done {
			pending++
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	return map[string]interface{}{
		"todos":   items,
		"pending": pending,
	}, nil
}

func (a *TodoAction) complete(ctx context.Context, db *sql.DB, id int64) (interface{}, error) {
	if id <= 0 {
		return nil, kerrors.InvalidInput("id is required to complete a todo")
	}

	res, err := db.ExecContext(ctx, `UPDATE todos SET done = 1, completed_at = ? WHERE id = ?`, a.now(), id)
	if err != nil {
		return nil, fmt.Errorf("complete todo: %w", err)
	}
	if err := requireAffected(res, id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"completed": id}, nil
}

func (a *TodoAction) remove(ctx context.Context, db *sql.DB, id int64) (interface{}, error) {
	if id <= 0 {
		return nil, kerrors.InvalidInput("id is required to remove a todo")
	}

	res, err := db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("remove todo: %w", err)
	}
	if err := requireAffected(res, id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"removed": id}, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kerrors.NotFound(fmt.Sprintf("todo %d", id))
	}
	return nil
}


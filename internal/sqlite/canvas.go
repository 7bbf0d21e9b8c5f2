package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// LoadCanvas reads the stored canvas. An empty database is a zero State.
func (b *Backend) LoadCanvas(ctx context.Context) (canvas.State, error) {
	db, err := b.conn()
	if err != nil {
		return canvas.State{}, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return canvas.State{}, fmt.Errorf("begin canvas load: %w", err)
	}
	defer tx.Rollback()

	var st canvas.State
	if st.Nodes, err = loadNodes(ctx, tx); err != nil {
		return canvas.State{}, err
	}
	if st.Edges, err = loadEdges(ctx, tx); err != nil {
		return canvas.State{}, err
	}
	if st.Known, err = loadIDs(ctx, tx, "SELECT iteration_id FROM canvas_known ORDER BY iteration_id"); err != nil {
		return canvas.State{}, err
	}
	if st.Collapsed, err = loadIDs(ctx, tx, "SELECT node_id FROM canvas_collapsed ORDER BY node_id"); err != nil {
		return canvas.State{}, err
	}

	var counter string
	err = tx.QueryRowContext(ctx, "SELECT value FROM canvas_meta WHERE key = ?", metaCounter).Scan(&counter)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return canvas.State{}, fmt.Errorf("read counter: %w", err)
	default:
		n, perr := strconv.Atoi(counter)
		if perr != nil {
			return canvas.State{}, fmt.Errorf("counter %q: %w: %w", counter, canvas.ErrCorrupt, perr)
		}
		st.Counter = n
	}
	return st, nil
}

// SaveCanvas replaces the stored canvas in one transaction.
func (b *Backend) SaveCanvas(ctx context.Context, st canvas.State) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin canvas save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"canvas_nodes", "canvas_edges", "canvas_known", "canvas_collapsed"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, n := range st.Nodes {
		data, err := nodePayload(n)
		if err != nil {
			return err
		}
		var w, h sql.NullFloat64
		if n.Size != nil {
			w = sql.NullFloat64{Float64: n.Size.Width, Valid: true}
			h = sql.NullFloat64{Float64: n.Size.Height, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO canvas_nodes (node_id, ordinal, kind, x, y, width, height, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			n.ID, i, string(n.Kind), n.Position.X, n.Position.Y, w, h, data,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	for i, e := range st.Edges {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO canvas_edges (edge_id, ordinal, source_id, target_id) VALUES (?, ?, ?, ?)",
			e.ID, i, e.Source, e.Target,
		); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID, err)
		}
	}
	for _, id := range st.Known {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO canvas_known (iteration_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("insert known %s: %w", id, err)
		}
	}
	for _, id := range st.Collapsed {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO canvas_collapsed (node_id) VALUES (?)", id); err != nil {
			return fmt.Errorf("insert collapsed %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO canvas_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaCounter, strconv.Itoa(st.Counter),
	); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit canvas save: %w", err)
	}
	return nil
}

// nodePayload encodes the kind-specific part of n.
func nodePayload(n types.Node) (string, error) {
	var v any
	switch n.Kind {
	case types.KindRoot:
		v = n.Root
	case types.KindIteration:
		v = n.Iteration
	case types.KindPlaceholder:
		v = n.Placeholder
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return string(data), nil
}

func loadNodes(ctx context.Context, tx *sql.Tx) ([]types.Node, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT node_id, kind, x, y, width, height, data FROM canvas_nodes ORDER BY ordinal")
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []types.Node
	for rows.Next() {
		var (
			n    types.Node
			kind string
			w, h sql.NullFloat64
			data string
		)
		if err := rows.Scan(&n.ID, &kind, &n.Position.X, &n.Position.Y, &w, &h, &data); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Kind = types.NodeKind(kind)
		if w.Valid && h.Valid {
			n.Size = &types.Size{Width: w.Float64, Height: h.Float64}
		}
		if err := decodePayload(&n, data); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	return nodes, nil
}

func decodePayload(n *types.Node, data string) error {
	var target any
	switch n.Kind {
	case types.KindRoot:
		n.Root = &types.RootData{}
		target = n.Root
	case types.KindIteration:
		n.Iteration = &types.IterationData{}
		target = n.Iteration
	case types.KindPlaceholder:
		n.Placeholder = &types.PlaceholderData{}
		target = n.Placeholder
	default:
		return fmt.Errorf("node %s kind %q: %w", n.ID, n.Kind, canvas.ErrCorrupt)
	}
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return fmt.Errorf("node %s payload: %w: %w", n.ID, canvas.ErrCorrupt, err)
	}
	return nil
}

func loadEdges(ctx context.Context, tx *sql.Tx) ([]types.Edge, error) {
	rows, err := tx.QueryContext(ctx, "SELECT edge_id, source_id, target_id FROM canvas_edges ORDER BY ordinal")
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read edges: %w", err)
	}
	return edges, nil
}

func loadIDs(ctx context.Context, tx *sql.Tx, query string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return ids, nil
}

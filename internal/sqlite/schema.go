package sqlite

// Schema DDL. Statements are idempotent so an existing database is reused.
const (
	createManifest = `CREATE TABLE IF NOT EXISTS manifest (
    iteration_id TEXT PRIMARY KEY,
    parent_id TEXT NOT NULL
);`

	createCanvasNodes = `CREATE TABLE IF NOT EXISTS canvas_nodes (
    node_id TEXT PRIMARY KEY,
    ordinal INTEGER NOT NULL,
    kind TEXT NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    width REAL,
    height REAL,
    data TEXT NOT NULL
);`

	createCanvasEdges = `CREATE TABLE IF NOT EXISTS canvas_edges (
    edge_id TEXT PRIMARY KEY,
    ordinal INTEGER NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL
);`

	createCanvasKnown = `CREATE TABLE IF NOT EXISTS canvas_known (
    iteration_id TEXT PRIMARY KEY
);`

	createCanvasCollapsed = `CREATE TABLE IF NOT EXISTS canvas_collapsed (
    node_id TEXT PRIMARY KEY
);`

	createCanvasMeta = `CREATE TABLE IF NOT EXISTS canvas_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`
)

// Index DDL.
const (
	idxManifestParent  = `CREATE INDEX IF NOT EXISTS idx_manifest_parent ON manifest(parent_id);`
	idxCanvasNodesOrd  = `CREATE INDEX IF NOT EXISTS idx_canvas_nodes_ordinal ON canvas_nodes(ordinal);`
	idxCanvasEdgesOrd  = `CREATE INDEX IF NOT EXISTS idx_canvas_edges_ordinal ON canvas_edges(ordinal);`
	idxCanvasEdgesDest = `CREATE UNIQUE INDEX IF NOT EXISTS idx_canvas_edges_target ON canvas_edges(target_id);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createManifest,
	createCanvasNodes,
	createCanvasEdges,
	createCanvasKnown,
	createCanvasCollapsed,
	createCanvasMeta,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxManifestParent,
	idxCanvasNodesOrd,
	idxCanvasEdgesOrd,
	idxCanvasEdgesDest,
}

// metaCounter is the canvas_meta key holding the node id counter.
const metaCounter = "counter"

package symbols

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_Go(t *testing.T) {
	src := `package main

func ProcessRequest(r *Request) error {
	return nil
}

func (s *Server) handleConn() {}

type Request struct {
	ID string
}

type Handler interface {
	Serve()
}

const MaxRetries = 3

var defaultTimeout = 30
`
	got := Extract(src, "go")
	for _, want := range []string{"ProcessRequest", "handleConn", "Request", "Handler", "MaxRetries", "defaultTimeout"} {
		assert.Contains(t, strings.Fields(got), want)
	}
}

func TestExtract_Rust(t *testing.T) {
	src := `pub struct IndexState {
    count: usize,
}

impl IndexState {
    pub fn new() -> Self { Self { count: 0 } }
}

pub async fn index_workspace() {}

pub trait Searchable {}

mod routes;
`
	got := strings.Fields(Extract(src, "rust"))
	assert.Contains(t, got, "IndexState")
	assert.Contains(t, got, "index_workspace")
	assert.Contains(t, got, "Searchable")
	assert.Contains(t, got, "routes")
	assert.Contains(t, got, "new")
}

func TestExtract_Python(t *testing.T) {
	src := `class Indexer:
    def build(self):
        pass

async def reconcile():
    pass
`
	got := strings.Fields(Extract(src, "python"))
	assert.Contains(t, got, "Indexer")
	assert.Contains(t, got, "build")
	assert.Contains(t, got, "reconcile")
}

func TestExtract_TypeScript(t *testing.T) {
	src := `export interface SearchResult {
  path: string;
}

export class SearchClient {}

export function runQuery(q: string) {}

export const formatHit = (hit: SearchResult) => hit.path;

enum Mode { Fast, Exact }
`
	got := strings.Fields(Extract(src, "typescript"))
	assert.Contains(t, got, "SearchResult")
	assert.Contains(t, got, "SearchClient")
	assert.Contains(t, got, "runQuery")
	assert.Contains(t, got, "formatHit")
	assert.Contains(t, got, "Mode")
}

func TestExtract_UnknownLanguage(t *testing.T) {
	assert.Empty(t, Extract("anything at all", "plaintext"))
}

func TestExtract_DropsShortIdentifiers(t *testing.T) {
	got := Extract("func f() {}\nfunc go2() {}", "go")
	fields := strings.Fields(got)
	assert.NotContains(t, fields, "f")
	assert.Contains(t, fields, "go2")
}

func TestExtract_Deduplicates(t *testing.T) {
	src := "def widget():\n    pass\ndef widget():\n    pass\n"
	assert.Equal(t, "widget", Extract(src, "python"))
}

package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/contentd/internal/repositories"
)

const dumpJSON = `{
  "pages": [
    {
      "id": 1,
      "name": "Root",
      "urlname": "index",
      "language_code": "en",
      "level": 0,
      "lft": 1,
      "rgt": 4,
      "created_at": "2024-01-15T09:00:00Z"
    },
    {
      "id": 2,
      "name": "Home",
      "urlname": "home",
      "page_layout": "standard",
      "language_code": "en",
      "parent_id": 1,
      "level": 1,
      "lft": 2,
      "rgt": 3,
      "restricted": true
    }
  ],
  "elements": [
    {
      "id": 10,
      "name": "header",
      "page_id": 2,
      "position": 1,
      "public": true,
      "tag_list": ["layout"],
      "contents": [
        {
          "id": 100,
          "name": "title",
          "element_id": 10,
          "position": 1,
          "essence_kind": "text",
          "essence_data": {"body": "Welcome"}
        }
      ]
    },
    {
      "id": 11,
      "name": "gallery",
      "page_id": 2,
      "position": 2,
      "public": true,
      "nestable": true
    }
  ]
}`

// TestLoaderParse tests dump parsing, numeric coercion and embedded contents
func TestLoaderParse(t *testing.T) {
	loader := NewLoader(zaptest.NewLogger(t))
	dump, err := loader.Parse([]byte(dumpJSON))
	require.NoError(t, err)

	require.Len(t, dump.Pages, 2)
	root := dump.Pages[0]
	assert.Equal(t, int64(1), root.ID)
	assert.Equal(t, "index", root.Urlname)
	assert.Equal(t, 2024, root.CreatedAt.Year())

	home := dump.Pages[1]
	assert.Equal(t, int64(1), home.ParentID)
	assert.True(t, home.Restricted)
	assert.Equal(t, "standard", home.PageLayout)

	require.Len(t, dump.Elements, 2)
	header := dump.Elements[0]
	assert.Equal(t, int64(2), header.PageID)
	assert.Equal(t, []string{"layout"}, header.TagList)
	require.Len(t, header.Contents, 1)
	assert.Equal(t, "text", header.Contents[0].EssenceKind)
	assert.Equal(t, "Welcome", header.Contents[0].EssenceData["body"])

	assert.True(t, dump.Elements[1].Nestable)
}

// TestLoaderParseRejectsBadRecords tests that malformed records fail with a
// positional error instead of loading partially
func TestLoaderParseRejectsBadRecords(t *testing.T) {
	loader := NewLoader(zaptest.NewLogger(t))

	_, err := loader.Parse([]byte(`{"pages": [{"name": "No ID"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pages[0]")

	_, err = loader.Parse([]byte(`{"elements": [{"id": 1, "name": "header"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page_id")

	_, err = loader.Parse([]byte(`not json`))
	assert.Error(t, err)
}

// TestLoaderApply tests writing a dump into a store
func TestLoaderApply(t *testing.T) {
	loader := NewLoader(zaptest.NewLogger(t))
	dump, err := loader.Parse([]byte(dumpJSON))
	require.NoError(t, err)

	repo := repositories.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, loader.Apply(ctx, dump, repo))

	page, err := repo.GetPageByUrlname(ctx, "home", "en")
	require.NoError(t, err)
	assert.True(t, page.Restricted)

	element, err := repo.GetElement(ctx, 10)
	require.NoError(t, err)
	require.Len(t, element.Contents, 1)
	assert.Equal(t, int64(100), element.Contents[0].ID)
}

// TestLoaderLoadFile tests the file entry point
func TestLoaderLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(dumpJSON), 0o644))

	loader := NewLoader(zaptest.NewLogger(t))
	dump, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, dump.Pages, 2)

	_, err = loader.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

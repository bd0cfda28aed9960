// Package catalogs loads the host-side block catalog and structure
// schematics. The block catalog is the reference BlockPalette: it maps the
// abstract palette entries a profile emits to numeric block ids.
package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const Air = "AIR"

type Catalogs struct {
	Blocks     BlockCatalog
	Schematics SchematicCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
	Fluid bool   `json:"fluid,omitempty"`
}

type SchematicCatalog struct {
	ByID   map[string]SchematicDef
	Digest string
}

// SchematicDef is a fixed block layout placed by schematic structure rules.
// Positions are relative to the anchor; the anchor sits on the surface.
type SchematicDef struct {
	ID     string           `json:"id"`
	Author string           `json:"author,omitempty"`
	Blocks []SchematicBlock `json:"blocks"`
}

type SchematicBlock struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadSchematics(filepath.Join(configDir, "schematics"), &c.Schematics); err != nil {
		return nil, err
	}
	for id, s := range c.Schematics.ByID {
		for _, b := range s.Blocks {
			if _, ok := c.Blocks.Index[b.Block]; !ok {
				return nil, fmt.Errorf("schematic %s: unknown block %q", id, b.Block)
			}
		}
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Lookup maps a palette entry to its block id.
func (b *BlockCatalog) Lookup(entry string) (uint16, bool) {
	id, ok := b.Index[entry]
	return id, ok
}

// LookupOrAir maps unknown entries to AIR, the way host adapters degrade
// when a profile names a block the platform does not have.
func (b *BlockCatalog) LookupOrAir(entry string) uint16 {
	if id, ok := b.Lookup(entry); ok {
		return id
	}
	return b.Index[Air]
}

// Entries lists block ids by numeric id.
func (b *BlockCatalog) Entries() []string { return b.Palette }

// Has reports whether entry is mappable.
func (b *BlockCatalog) Has(entry string) bool {
	_, ok := b.Index[entry]
	return ok
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR must exist and be palette id 0.
	if _, ok := out.Defs[Air]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{Air}, filterOut(ids, Air)...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseBlocks(raw, out)
}

// NewBlockCatalog builds a catalog from ids directly; used by embedders that
// do not ship a blocks.json.
func NewBlockCatalog(ids ...string) (*BlockCatalog, error) {
	defs := make([]BlockDef, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, BlockDef{ID: id, Solid: id != Air})
	}
	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, err
	}
	var out BlockCatalog
	if err := parseBlocks(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func loadSchematics(dir string, out *SchematicCatalog) error {
	out.ByID = map[string]SchematicDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// A catalog without schematics is fine.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var sd SchematicDef
		if err := json.Unmarshal(b, &sd); err != nil {
			return fmt.Errorf("schematic %s: %w", filepath.Base(p), err)
		}
		if sd.ID == "" {
			return fmt.Errorf("schematic %s: missing id", filepath.Base(p))
		}
		if len(sd.Blocks) == 0 {
			return fmt.Errorf("schematic %s: no blocks", filepath.Base(p))
		}
		if _, dup := out.ByID[sd.ID]; dup {
			return fmt.Errorf("schematic %s: duplicate id %q", filepath.Base(p), sd.ID)
		}
		out.ByID[sd.ID] = sd
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}

package vocabulary

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Load reads one label per line from path. A missing file yields an empty
// set, which is how a fresh vocabulary bootstraps.
func Load(path string) (TypeSet, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary %s: %w", path, err)
	}
	defer f.Close()

	s := New()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		s.Add(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	return s, nil
}

// Save overwrites path with the sorted labels of s, one per line.
// The file is written next to its final location and renamed into place.
func Save(path string, s TypeSet) error {
	tmp, err := stage(path, s)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing vocabulary %s: %w", path, err)
	}
	return nil
}

// stage writes the labels of s to a temp file beside path and returns its
// name. The caller renames or removes it.
func stage(path string, s TypeSet) (string, error) {
	var b strings.Builder
	for _, l := range s.Sorted() {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating vocabulary directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("creating temp vocabulary file: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing vocabulary %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing vocabulary %s: %w", path, err)
	}
	return tmp.Name(), nil
}

// MergeResult reports the outcome of folding one document's labels into
// the persisted vocabulary.
type MergeResult struct {
	Vocabulary         Vocabulary
	EntitySimilarity   float64
	RelationSimilarity float64
	AddedEntities      []string
	AddedRelations     []string
}

// Store is the file-backed vocabulary: one file of entity types and one of
// relation types. Every Load and Merge goes back to disk so edits made
// between documents are picked up.
type Store struct {
	mu           sync.Mutex
	entityPath   string
	relationPath string
	rename       func(oldpath, newpath string) error
}

// NewStore returns a Store over the two label files.
func NewStore(entityPath, relationPath string) *Store {
	return &Store{entityPath: entityPath, relationPath: relationPath, rename: os.Rename}
}

// Paths returns the entity and relation file paths.
func (s *Store) Paths() (entity, relation string) {
	return s.entityPath, s.relationPath
}

// Load reads both label files.
func (s *Store) Load() (Vocabulary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Vocabulary, error) {
	ents, err := Load(s.entityPath)
	if err != nil {
		return Vocabulary{}, err
	}
	rels, err := Load(s.relationPath)
	if err != nil {
		return Vocabulary{}, err
	}
	return Vocabulary{Entities: ents, Relations: rels}, nil
}

// Merge re-reads both files, folds discovered into them, writes both back
// sorted and returns the two similarity scores. Both files change or
// neither does: on any I/O error the previous contents are kept and the
// caller must not record scores.
func (s *Store) Merge(discovered Vocabulary) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return MergeResult{}, err
	}

	dEnt := discovered.Entities
	if dEnt == nil {
		dEnt = New()
	}
	dRel := discovered.Relations
	if dRel == nil {
		dRel = New()
	}

	ents, entScore := Merge(existing.Entities, dEnt)
	rels, relScore := Merge(existing.Relations, dRel)

	if err := s.commit(existing, Vocabulary{Entities: ents, Relations: rels}); err != nil {
		return MergeResult{}, err
	}

	return MergeResult{
		Vocabulary:         Vocabulary{Entities: ents, Relations: rels},
		EntitySimilarity:   entScore,
		RelationSimilarity: relScore,
		AddedEntities:      dEnt.Difference(existing.Entities),
		AddedRelations:     dRel.Difference(existing.Relations),
	}, nil
}

// commit stages both files before replacing either. If the relation file
// cannot be replaced the entity file is put back to prev.
func (s *Store) commit(prev, next Vocabulary) error {
	entTmp, err := stage(s.entityPath, next.Entities)
	if err != nil {
		return err
	}
	relTmp, err := stage(s.relationPath, next.Relations)
	if err != nil {
		os.Remove(entTmp)
		return err
	}

	if err := s.rename(entTmp, s.entityPath); err != nil {
		os.Remove(entTmp)
		os.Remove(relTmp)
		return fmt.Errorf("replacing vocabulary %s: %w", s.entityPath, err)
	}
	if err := s.rename(relTmp, s.relationPath); err != nil {
		os.Remove(relTmp)
		err = fmt.Errorf("replacing vocabulary %s: %w", s.relationPath, err)
		if rerr := s.restore(prev.Entities); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

func (s *Store) restore(prev TypeSet) error {
	tmp, err := stage(s.entityPath, prev)
	if err != nil {
		return fmt.Errorf("restoring vocabulary %s: %w", s.entityPath, err)
	}
	if err := s.rename(tmp, s.entityPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("restoring vocabulary %s: %w", s.entityPath, err)
	}
	return nil
}

package scanner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/hpungsan/lib/internal/catalog"
)

// hashFile fills rec.ContentHash, and rec.ContentSnippet when the file is
// eligible for extraction, from a single read of the file at diskPath.
func (s *Scanner) hashFile(rec *catalog.FileRecord, diskPath string, p *pass) error {
	f, err := os.Open(diskPath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	var n int64

	if s.extractable(rec) {
		// Read up to one byte past the ceiling to notice files that grew since stat.
		var buf bytes.Buffer
		read, err := io.Copy(&buf, io.LimitReader(f, s.maxBytes+1))
		if err != nil {
			return err
		}
		h.Write(buf.Bytes())
		n += read
		if read <= s.maxBytes {
			rec.ContentSnippet = ExtractSnippet(buf.Bytes(), *rec.MediaType, int(s.maxBytes))
		}
	}

	rest, err := io.Copy(h, f)
	if err != nil {
		return err
	}
	n += rest
	p.hashed.Add(n)

	sum := hex.EncodeToString(h.Sum(nil))
	rec.ContentHash = &sum
	return nil
}

func (s *Scanner) extractable(rec *catalog.FileRecord) bool {
	return s.cfg.ContentExtractionEnabled &&
		s.maxBytes > 0 &&
		rec.SizeBytes <= s.maxBytes &&
		catalog.IsTextLike(rec.MediaType)
}

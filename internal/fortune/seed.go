package fortune

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Load reads pipe-delimited seed records. Lines without exactly three fields
// are skipped.
func Load(r io.Reader) ([]Fortune, error) {
	var out []Fortune
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if f, ok := ParseRecord(scanner.Text()); ok {
			out = append(out, f)
		}
	}
	if err := scanner.Err(); err != nil {
		return out, errors.Wrap(err, "scan seed records failed")
	}
	return out, nil
}

// LoadFile reads seed records from path. A missing file yields no records and
// no error.
func LoadFile(path string) ([]Fortune, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open seed file %s failed", path)
	}
	defer f.Close()
	return Load(f)
}

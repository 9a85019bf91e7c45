package snapshot

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
	merkletree "github.com/txaty/go-merkletree"

	"snapdiff/internal/hash"
	"snapdiff/internal/tree"
)

// leaf is one file of a tree as fed to the Merkle builder.
type leaf struct {
	path    string
	modTime int64
	digest  hash.Digest
	hashed  bool
}

func (l leaf) Serialize() ([]byte, error) {
	buf := append([]byte(l.path), 0)
	if l.hashed {
		return append(buf, l.digest[:]...), nil
	}
	// unhashed files are identified by their mtime
	return binary.BigEndian.AppendUint64(buf, uint64(l.modTime)), nil
}

// Summary returns a Merkle root over every file of root, in pre-order.
// Equal trees give equal summaries; a nil root summarizes as an empty tree.
func Summary(root *tree.Directory) (string, error) {
	var blocks []merkletree.DataBlock

	if root != nil {
		_ = root.Walk(func(e tree.Entry) error {
			f, ok := e.(*tree.File)
			if !ok {
				return nil
			}
			d, hashed := f.Digest()
			blocks = append(blocks, leaf{path: f.FullPath(), modTime: f.ModTime(), digest: d, hashed: hashed})
			return nil
		})
	}

	// the builder needs at least two blocks
	switch len(blocks) {
	case 0:
		sum, err := hash.XXHashFunc([]byte("empty-tree"))
		if err != nil {
			return "", errors.Wrap(err, "failed to create empty tree hash")
		}
		return hex.EncodeToString(sum), nil

	case 1:
		data, err := blocks[0].Serialize()
		if err != nil {
			return "", err
		}
		sum, err := hash.XXHashFunc(data)
		if err != nil {
			return "", errors.Wrap(err, "failed to hash single leaf")
		}
		return hex.EncodeToString(sum), nil
	}

	mt, err := merkletree.New(&merkletree.Config{
		HashFunc: hash.XXHashFunc,
		Mode:     merkletree.ModeTreeBuild,
	}, blocks)
	if err != nil {
		return "", errors.Wrap(err, "failed to build merkle tree")
	}

	return hex.EncodeToString(mt.Root), nil
}

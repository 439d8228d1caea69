package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
)

// FileHash is the result of hashing one file.
type FileHash struct {
	Path string
	Hash string
	Err  error
}

// HashFile computes the hex sha256 of a file without loading it whole.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFiles hashes a batch of files with a bounded worker pool. Results come
// back in input order; per-file errors are carried in the result, never fatal
// for the batch.
func HashFiles(paths []string, workers int) []FileHash {
	if workers < 1 {
		workers = 1
	}
	results := make([]FileHash, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				hash, err := HashFile(paths[i])
				results[i] = FileHash{Path: paths[i], Hash: hash, Err: err}
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

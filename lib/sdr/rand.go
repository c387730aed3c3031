package sdr

import (
	"crypto/rand"
	"io"
	"sync"
)

// Process-wide randomness behind GenerateReplicaID and GenerateChallenges.
// It defaults to crypto/rand; tests may swap in a deterministic reader.
var (
	randLk  sync.Mutex
	randSrc io.Reader = rand.Reader
)

// SetRandSource replaces the randomness source and returns the previous one.
func SetRandSource(r io.Reader) io.Reader {
	randLk.Lock()
	defer randLk.Unlock()

	prev := randSrc
	randSrc = r
	return prev
}

func readRand(b []byte) error {
	randLk.Lock()
	defer randLk.Unlock()

	_, err := io.ReadFull(randSrc, b)
	return err
}

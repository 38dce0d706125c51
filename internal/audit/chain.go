package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

var ErrChainBroken = errors.New("audit: chain broken")

// Link returns e stamped with the sequence number and hash that follow prev.
// prev is the zero Entry for the first entry of a log. Timestamps are cut to
// millisecond precision so the hash survives a round trip through BSON.
func Link(prev, e Entry) (Entry, error) {
	prevHash, err := hex.DecodeString(prev.Hash)
	if err != nil {
		return Entry{}, ErrChainBroken
	}
	e.Seq = prev.Seq + 1
	if len(e.Meta) == 0 {
		e.Meta = nil
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)
	sum, err := chainHash(prevHash, e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hex.EncodeToString(sum)
	return e, nil
}

// ChainVerifier checks entries fed to it in append order.
type ChainVerifier struct {
	last Entry
	n    int
}

func (v *ChainVerifier) Check(e Entry) error {
	want, err := Link(v.last, e)
	if err != nil {
		return err
	}
	if want.Seq != e.Seq || want.Hash != e.Hash {
		return ErrChainBroken
	}
	v.last = e
	v.n++
	return nil
}

// Checked reports how many entries passed.
func (v *ChainVerifier) Checked() int { return v.n }

// chainHash covers everything but the storage id. Meta is expected to be a
// flat map of strings and numbers.
func chainHash(prev []byte, e Entry) ([]byte, error) {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(prev)
	h.Write([]byte(strconv.FormatInt(e.Seq, 10)))
	h.Write([]byte{0})
	h.Write([]byte(e.UserID))
	h.Write([]byte{0})
	h.Write([]byte(e.Action))
	h.Write([]byte{0})
	h.Write(meta)
	h.Write([]byte{0})
	h.Write([]byte(e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")))
	return h.Sum(nil), nil
}

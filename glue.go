// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import "github.com/valyala/bytebufferpool"

// Deserialize decodes the archive entry at path through s. An
// uncompressed entry is decoded directly from the archive's backing
// buffer or memory mapping with no copy; a compressed entry is inflated
// into a pooled scratch buffer first.
func (a *Archive) Deserialize(path string, s *Serializer) (*Object, error) {
	idx, ok := a.byName[path]
	if !ok {
		return nil, ErrNotInArchive
	}
	e := a.entries[idx]

	raw, err := a.rawBytes(e)
	if err != nil {
		return nil, err
	}
	if err := verifyEntryCRC(raw, e.crc); err != nil {
		return nil, err
	}

	if !e.isEffectivelyCompressed() {
		return s.Deserialize(raw)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := inflateEntryInto(buf, raw, e.size); err != nil {
		return nil, err
	}
	return s.Deserialize(buf.Bytes())
}

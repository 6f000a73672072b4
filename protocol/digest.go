// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import "github.com/luxfi/ids"

// Digest is the fixed-width output of the hash primitive:
// 32 bytes, byte-wise equality. Reused directly rather than redefined,
// since ids.ID is already exactly this shape and ships its own
// String/Bytes helpers.
type Digest = ids.ID

// EmptyDigest is the all-zero digest, used as the parent of the
// genesis block and as the "no value" sentinel where a digest field is
// optional.
var EmptyDigest = ids.Empty

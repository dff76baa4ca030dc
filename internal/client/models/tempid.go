package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mvoronin-dev/pocketledger/internal/common"
)

// TempIDPrefix marks identifiers generated locally for records the server
// has not confirmed yet. Server-issued ids never start with it.
const TempIDPrefix = "temp_"

// NewTempID builds a temporary record identifier: the fixed prefix, a
// millisecond timestamp, and a random hex suffix. The combination keeps local
// ids unique across rapid creations and distinguishable from server ids so
// they can be located for later replacement.
func NewTempID() string {
	suffix, err := common.MakeRandHexString(4)
	if err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a second timestamp component rather than panicking mid-create.
		suffix = fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%s%d_%s", TempIDPrefix, time.Now().UnixMilli(), suffix)
}

// IsTempID reports whether id was generated locally by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

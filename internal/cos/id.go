package cos

import (
	"sync"

	"github.com/teris-io/shortid"
)

var (
	once sync.Once
	sid  *shortid.Shortid
)

// GenCorrelationID returns a short, human-loggable id, the same role the
// teacher's cmn/cos.GenUUID plays for daemon ids — used here to tag a
// running Client instance and its ControllerShortcut events for log
// disambiguation, not as a protocol identifier.
func GenCorrelationID() string {
	once.Do(func() {
		sid = shortid.MustNew(1, shortid.DefaultABC, 73)
	})
	id, err := sid.Generate()
	if err != nil {
		return "id-err"
	}
	return id
}

package outbox

import "gorm.io/gorm/clause"

func skipLocked() clause.Locking {
	return clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
}

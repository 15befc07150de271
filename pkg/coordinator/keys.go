package coordinator

import "fmt"

// Key names for the coordinator's flat keyspace, per the data model: all
// state lives as small string values, created on first write and removed on
// shutdown or reset.
const (
	KeyTotalPages    = "totalPages"
	KeyTotalProducts = "totalProducts"

	KeyTabsReady     = "tabsReady"
	KeyCrawlTrigger  = "crawlTrigger"
	KeyBatchStart    = "batch/start"
	KeyBatchEnd      = "batch/end"
	KeyBatchComplete = "batchComplete"

	KeyRotationIndex            = "rotation/index"
	KeyRotationLastAssignedPage = "rotation/lastAssignedPage"

	KeySessionCookies = "session/cookies"
	KeySessionValid   = "session/valid"
)

// GeneralHeartbeat, GeneralPages, GeneralComplete, GeneralProcessing are the
// per-id keys a General worker owns.
func GeneralHeartbeat(id string) string  { return fmt.Sprintf("general/%s/heartbeat", id) }
func GeneralPages(id string) string      { return fmt.Sprintf("general/%s/pages", id) }
func GeneralComplete(id string) string   { return fmt.Sprintf("general/%s/complete", id) }
func GeneralProcessing(id string) string { return fmt.Sprintf("general/%s/processing", id) }

// ProductHeartbeat, ProductPages, ProductComplete are the per-id keys a
// Product worker owns.
func ProductHeartbeat(id string) string { return fmt.Sprintf("product/%s/heartbeat", id) }
func ProductPages(id string) string     { return fmt.Sprintf("product/%s/pages", id) }
func ProductComplete(id string) string  { return fmt.Sprintf("product/%s/complete", id) }

// LockKey builds the lock/<role>-<id> key used by the single-leader lock
// protocol, shared by the Manager (role "manager", id "1") and every
// General/Product worker.
func LockKey(role, id string) string { return fmt.Sprintf("lock/%s-%s", role, id) }

package domain

// Progress is a point-in-time snapshot of a batch derived purely from its
// records' statuses. Pending includes claimed (IN_PROGRESS) records so that
// Total == Sent + Failed + Pending at every observation point.
type Progress struct {
	BatchID string
	Total   int
	Sent    int
	Failed  int
	Pending int
	Done    bool
}

package mm2

// This file is the C10 upload-facing transaction layer: a thin,
// vocabulary-only wrapper over the C5 read/ack primitives, named the
// way an uploader thinks about the store (take a batch, ack it, nack
// it) rather than the way the engine implements it (spec.md §6).

// TakeBatch returns up to max unread records for (src, sensor) and
// opens (or extends) its pending window, identically to ReadBulk.
func (e *Engine) TakeBatch(src UploadSource, sensor uint32, max int) ([]Record, error) {
	return e.ReadBulk(src, sensor, max)
}

// Ack confirms the most recently taken batch was uploaded successfully,
// freeing its sectors. count is accepted but not used: erase_pending
// always clears the entire outstanding pending window (spec.md C10 —
// an uploader acks or nacks the batch it was given, never a partial
// slice of it).
func (e *Engine) Ack(src UploadSource, sensor uint32, count int) error {
	return e.ErasePending(src, sensor)
}

// Nack reports that the most recently taken batch failed to upload,
// restoring its records to "new" so a future TakeBatch returns them
// again.
func (e *Engine) Nack(src UploadSource, sensor uint32) error {
	return e.RevertPending(src, sensor)
}

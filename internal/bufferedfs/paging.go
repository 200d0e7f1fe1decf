/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package bufferedfs

import (
	"webdb/internal/pagebuffer"
	"webdb/internal/vfs"
)

// pagedReadAt serves a possibly multi-page read by touching the pool
// once per page the range spans, stopping early at EOF. Whether a given
// page access was a pool hit or miss is inferred from the pool's
// cumulative miss counter around the call — the only signal GetPage
// exposes without widening its return type — and used to record the
// right statistic (reads_cold vs reads_cached) against the file's
// collector, since the pool itself has no notion of per-file stats.
func (fs *FS) pagedReadAt(wf *vfs.WebFile, buf []byte, offset int64) (int, error) {
	pageSize := int64(fs.pool.PageSize())
	total := 0
	for total < len(buf) {
		cur := offset + int64(total)
		pageNo := uint64(cur / pageSize)
		localOff := int(cur - int64(pageNo)*pageSize)

		missesBefore := fs.pool.Stats().Misses
		pg, err := fs.pool.GetPage(pagebuffer.PageKey{FileID: wf.FileID, PageNo: pageNo}, pagebuffer.IntentRead, int(pageSize))
		if err != nil {
			return total, err
		}
		wasHit := fs.pool.Stats().Misses == missesBefore

		content := pg.Bytes()
		var n int
		if localOff < len(content) {
			n = copy(buf[total:], content[localOff:])
		}
		pg.Unpin(false)

		// A miss already records reads_cold inside vfs.Registry.LoadPage
		// (the only place that knows a host read actually happened); a
		// hit is only visible here, so it's recorded at this level.
		if wasHit && wf.FileStats != nil {
			wf.FileStats.RecordReadCached(int(pageNo))
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// pagedWriteAt splits a write across the pages it touches, read-
// modify-writing each one through the pool (a miss loads existing
// content first, so a partial-page write never clobbers neighboring
// bytes).
func (fs *FS) pagedWriteAt(wf *vfs.WebFile, buf []byte, offset int64) (int, error) {
	pageSize := int64(fs.pool.PageSize())
	total := 0
	for total < len(buf) {
		cur := offset + int64(total)
		pageNo := uint64(cur / pageSize)
		localOff := int(cur - int64(pageNo)*pageSize)
		remaining := len(buf) - total
		chunk := int(pageSize) - localOff
		if chunk > remaining {
			chunk = remaining
		}

		pg, err := fs.pool.GetPage(pagebuffer.PageKey{FileID: wf.FileID, PageNo: pageNo}, pagebuffer.IntentWrite, int(pageSize))
		if err != nil {
			return total, err
		}
		n := pg.WriteAt(localOff, buf[total:total+chunk])
		if err := pg.Unpin(true); err != nil {
			return total, err
		}
		if wf.FileStats != nil {
			wf.FileStats.RecordWrite(int(pageNo))
		}
		if n == 0 {
			break
		}
		total += n
	}

	wf.FileLock.Lock()
	if end := offset + int64(total); end > wf.FileSize {
		wf.FileSize = end
	}
	wf.FileLock.Unlock()
	return total, nil
}

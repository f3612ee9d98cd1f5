package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"initialize_schema", "create", "get_by_uuid", "list",
		"exists_by_filename", "find_by_filename", "delete_by_filename", "count"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, s := range []string{"success", "missing_chunk", "error"} {
		UploadAssembliesTotal.WithLabelValues(s)
	}
	for _, r := range []string{"invalid_request", "extension", "too_large"} {
		UploadRejectedTotal.WithLabelValues(r)
	}

	for _, r := range []string{"queued", "duplicate", "full"} {
		IngestEnqueuedTotal.WithLabelValues(r)
	}
	for _, s := range []string{"missing", "extension", "probe", "filename", "move", "thumbnail", "catalog"} {
		IngestFailuresTotal.WithLabelValues(s)
	}

	for _, op := range []string{"probe", "thumbnail", "faststart"} {
		ToolInvocationsTotal.WithLabelValues(op, "success")
		ToolInvocationsTotal.WithLabelValues(op, "error")
		ToolInvocationsTotal.WithLabelValues(op, "timeout")
		ToolDuration.WithLabelValues(op)
	}
	for _, r := range []string{"success", "empty", "error"} {
		ThumbnailAttemptsTotal.WithLabelValues(r)
	}

	for _, dir := range []string{"uploads", "videos"} {
		for _, typ := range []string{"create", "write", "remove", "rename", "chmod"} {
			WatcherEventsTotal.WithLabelValues(dir, typ)
		}
	}

	for _, k := range []string{"orphan_entry", "artifact", "swept_artifact"} {
		ReconcileRemovedTotal.WithLabelValues(k)
	}

	for _, s := range []string{"200", "206", "404", "416"} {
		StreamRequestsTotal.WithLabelValues(s)
	}

	for _, m := range []string{"rename", "copy"} {
		FilesystemMoves.WithLabelValues(m)
	}

	volumes := []string{"uploads", "videos", "thumbnails", "data", "unknown"}
	for _, op := range []string{"stat", "open", "readdir"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, typ := range []string{"video:added", "video:deleted"} {
		NotificationsTotal.WithLabelValues(typ)
	}
}

package main

import (
	"fmt"
	"net/http"

	"voxelsculpt.ai/internal/persistence/indexdb"
	"voxelsculpt.ai/internal/persistence/r2s3"
	"voxelsculpt.ai/internal/sim/editor"
	"voxelsculpt.ai/internal/transport/observer"
)

// Minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, ed *editor.Editor, hub *observer.Hub, idx *indexdb.SQLiteIndex, mirror *r2s3.Mirror) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	m := ed.Metrics()
	fmt.Fprintf(rw, "# HELP voxelsculpt_edits_total Applied terrain edits.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_edits_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_edits_total %d\n", m.Edits)

	fmt.Fprintf(rw, "# HELP voxelsculpt_edits_failed_total Edits aborted by a mesher or render error.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_edits_failed_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_edits_failed_total %d\n", m.Failed)

	fmt.Fprintf(rw, "# HELP voxelsculpt_editor_queue_depth Editor inbox backlog.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_editor_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_editor_queue_depth %d\n", m.QueueDepth)

	fmt.Fprintf(rw, "# HELP voxelsculpt_edit_apply_us Duration of the last edit in microseconds.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_edit_apply_us gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_edit_apply_us %d\n", m.LastApplyUS)

	fmt.Fprintf(rw, "# HELP voxelsculpt_chunks Chunks with a live render handle.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_chunks gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_chunks %d\n", hub.Chunks())

	fmt.Fprintf(rw, "# HELP voxelsculpt_observers Connected observers.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_observers gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_observers %d\n", hub.Subscribers())

	fmt.Fprintf(rw, "# HELP voxelsculpt_observer_evicted_total Observers dropped for falling behind.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_observer_evicted_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_observer_evicted_total %d\n", hub.EvictTotal())

	writeIndexMetrics(rw, idx)
	writeMirrorMetrics(rw, mirror)
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP voxelsculpt_index_queue_depth Edit index queue depth.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP voxelsculpt_index_dropped_total Edit index entries dropped under backlog.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_index_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_index_dropped_total %d\n", s.DropTotal)

	fmt.Fprintf(rw, "# HELP voxelsculpt_index_write_fail_total Failed edit index transactions.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_index_write_fail_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_index_write_fail_total %d\n", s.WriteFailTotal)
}

func writeMirrorMetrics(rw http.ResponseWriter, mirror *r2s3.Mirror) {
	if mirror == nil {
		return
	}
	s := mirror.Stats()
	fmt.Fprintf(rw, "# HELP voxelsculpt_mirror_queue_depth Edit log mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP voxelsculpt_mirror_dropped_total Edit log files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP voxelsculpt_mirror_upload_success_total Successful edit log uploads.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_mirror_upload_success_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(rw, "# HELP voxelsculpt_mirror_upload_fail_total Edit log uploads that failed after retry.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_mirror_upload_fail_total counter\n")
	fmt.Fprintf(rw, "voxelsculpt_mirror_upload_fail_total %d\n", s.UploadFailTotal)

	fmt.Fprintf(rw, "# HELP voxelsculpt_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE voxelsculpt_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "voxelsculpt_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}

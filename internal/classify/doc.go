// Package classify inspects the working copy and categorizes file changes.
//
// Classification is driven by explicit ordered rule tables (filename,
// extension, directory pattern, priority cascade) so results are
// deterministic and testable. A classification run never fails on an
// individual path: unknown paths degrade to a low-confidence fallback.
package classify

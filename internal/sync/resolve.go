package sync

import (
	"github.com/hitoshi/tasksync/internal/model"
)

// Resolution はlast-writer-wins判定の結果を表す。
type Resolution string

const (
	// KeepLocal はローカル行を維持する（リモートコピーが古い）。
	KeepLocal Resolution = "keep_local"
	// KeepRemote はリモートドキュメントを採用する。
	KeepRemote Resolution = "keep_remote"
)

// Resolve はローカル行とリモートドキュメントのlast-writer-wins判定を行う。
// 判定基準はupdated_at_msのみで、内容は比較しない。
// 同時刻の場合はリモートを採用する（全レプリカで同一の決定となるように）。
// localがnilの場合は常にKeepRemote、remoteがnilの場合は常にKeepLocal。
func Resolve(local, remote *model.SyncEnvelope) Resolution {
	if local == nil {
		return KeepRemote
	}
	if remote == nil {
		return KeepLocal
	}
	if local.UpdatedAtMS > remote.UpdatedAtMS {
		return KeepLocal
	}
	return KeepRemote
}

package paramstore

import (
	"time"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
)

// #region param-record
// ParamRecord is one versioned, immutable parameter set.
type ParamRecord struct {
	VersionID   string
	ParentID    string
	Model       *model.Model
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion param-record

// #region version-with-log
// VersionWithLog pairs a parameter version with the training_log row that
// produced it, if any.
type VersionWithLog struct {
	ParamRecord
	TriggerType string
	Decision    string
	Reason      string
	PayloadJSON string
}

// #endregion version-with-log

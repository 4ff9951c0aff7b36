package client

import (
	"github.com/chocolzs/linkura-go/internal/protocol"
	"github.com/chocolzs/linkura-go/internal/protocol/tlv"
)

// Query parameter field IDs, allocated above the codec's reserved range.
const (
	ParamLimit      = protocol.FieldParamBase + 0
	ParamOrder      = protocol.FieldParamBase + 1
	ParamSort       = protocol.FieldParamBase + 2
	ParamArchivesID = protocol.FieldParamBase + 3
	ParamLiveID     = protocol.FieldParamBase + 4
)

// Operation is one logical request against the game service.
type Operation struct {
	Resource string
	Params   []tlv.Field
}

// Result carries the decoded records for an operation. Record contents are
// opaque to the orchestrator.
type Result struct {
	Resource string
	Records  [][]byte
}

// Home returns the archive home listing (trailer and live archives).
func Home() Operation {
	return Operation{Resource: "archive/get_home"}
}

// ArchiveList returns up to limit archives, newest live first.
func ArchiveList(limit uint32) Operation {
	if limit == 0 {
		limit = 4
	}
	return Operation{
		Resource: "archive/get_archive_list",
		Params: []tlv.Field{
			tlv.U32(ParamLimit, limit),
			tlv.String(ParamOrder, "desc"),
			tlv.String(ParamSort, "live_start_time"),
		},
	}
}

// FesArchiveData returns playback data for one fes-live archive.
func FesArchiveData(archivesID string) Operation {
	return Operation{
		Resource: "archive/get_fes_archive_data",
		Params:   []tlv.Field{tlv.String(ParamArchivesID, archivesID)},
	}
}

// WithArchiveData returns playback data for one with-live archive.
func WithArchiveData(archivesID string) Operation {
	return Operation{
		Resource: "archive/get_with_archive_data",
		Params:   []tlv.Field{tlv.String(ParamArchivesID, archivesID)},
	}
}

// WithLiveEnter registers presence in a running with-live.
func WithLiveEnter(liveID string) Operation {
	return Operation{
		Resource: "withlive/enter",
		Params:   []tlv.Field{tlv.String(ParamLiveID, liveID)},
	}
}

// FesLiveEnter registers presence in a running fes-live.
func FesLiveEnter(liveID string) Operation {
	return Operation{
		Resource: "feslive/enter",
		Params:   []tlv.Field{tlv.String(ParamLiveID, liveID)},
	}
}

// WithLiveConnectToken requests the stream connect token for a with-live.
func WithLiveConnectToken(liveID string) Operation {
	return Operation{
		Resource: "withlive/connect_token",
		Params:   []tlv.Field{tlv.String(ParamLiveID, liveID)},
	}
}

// FesLiveConnectToken requests the stream connect token for a fes-live.
func FesLiveConnectToken(liveID string) Operation {
	return Operation{
		Resource: "feslive/connect_token",
		Params:   []tlv.Field{tlv.String(ParamLiveID, liveID)},
	}
}

// AppVersion probes the current client and resource versions.
func AppVersion() Operation {
	return Operation{Resource: "system/app_version"}
}

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keshon/datastore"
)

const tracksHistoryLimit int = 12

// Storage persists per-guild music preferences and a short play history.
// The playback engine never depends on it for correctness; sessions are
// memory-resident by design.
type Storage struct {
	ds *datastore.DataStore
}

type GuildSettings struct {
	DefaultVolume     int    `json:"default_volume"`
	LoopMode          string `json:"loop_mode"`
	AnnounceChannelID string `json:"announce_channel_id"`
}

type TrackHistoryRecord struct {
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	URI       string    `json:"uri"`
	Requester string    `json:"requester"`
	PlayedAt  time.Time `json:"played_at"`
}

type Record struct {
	Settings      GuildSettings        `json:"settings"`
	TracksHistory []TrackHistoryRecord `json:"tracks_history"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// getOrCreateGuildRecord loads the guild's record, creating an empty one on
// first touch. The datastore hands back generic maps, so records roundtrip
// through JSON.
func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	data, exists := s.ds.Get(guildID)
	if !exists {
		newRecord := &Record{}
		s.ds.Add(guildID, newRecord)
		return newRecord, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshalling data: %w", err)
	}

	var record Record
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("error unmarshalling to *Record: %w", err)
	}

	if len(record.TracksHistory) > tracksHistoryLimit {
		record.TracksHistory = record.TracksHistory[len(record.TracksHistory)-tracksHistoryLimit:]
	}

	return &record, nil
}

func (s *Storage) GetSettings(guildID string) (GuildSettings, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return GuildSettings{}, err
	}
	return record.Settings, nil
}

func (s *Storage) SetDefaultVolume(guildID string, volume int) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	record.Settings.DefaultVolume = volume
	s.ds.Add(guildID, record)
	return nil
}

func (s *Storage) SetLoopMode(guildID string, mode string) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	record.Settings.LoopMode = mode
	s.ds.Add(guildID, record)
	return nil
}

func (s *Storage) SetAnnounceChannel(guildID, channelID string) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	record.Settings.AnnounceChannelID = channelID
	s.ds.Add(guildID, record)
	return nil
}

// AppendTrackToHistory records a played track, keeping the newest entries.
func (s *Storage) AppendTrackToHistory(guildID string, rec TrackHistoryRecord) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	record.TracksHistory = append(record.TracksHistory, rec)
	if len(record.TracksHistory) > tracksHistoryLimit {
		record.TracksHistory = record.TracksHistory[len(record.TracksHistory)-tracksHistoryLimit:]
	}
	s.ds.Add(guildID, record)
	return nil
}

func (s *Storage) FetchTrackHistory(guildID string) ([]TrackHistoryRecord, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.TracksHistory, nil
}

package hangfire

import (
	"sort"
	"strconv"
	"time"
)

// Client is the read-only monitoring API over the storage schema, for
// dashboards and health reporters. It never mutates anything.
type Client struct {
	storage *Storage
}

// NewClient returns a monitoring client over the storage.
func NewClient(storage *Storage) *Client {
	return &Client{storage: storage}
}

// QueueInfo describes one queue: pending length, in-flight length and the
// first few pending job IDs.
type QueueInfo struct {
	Name        string
	Length      int64
	Fetched     int64
	FirstJobIDs []string
}

// Queues lists every known queue, sorted by name.
func (c *Client) Queues() ([]*QueueInfo, error) {
	conn := c.storage.GetConnection()

	names, err := conn.GetQueues()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	queues := make([]*QueueInfo, 0, len(names))
	for _, name := range names {
		length, err := conn.GetListCount("queue:" + name)
		if err != nil {
			return nil, err
		}
		fetched, err := conn.GetListCount("queue:" + name + ":dequeued")
		if err != nil {
			return nil, err
		}
		firstIDs, err := conn.GetRangeFromList("queue:"+name, -5, -1)
		if err != nil {
			return nil, err
		}
		queues = append(queues, &QueueInfo{
			Name:        name,
			Length:      length,
			Fetched:     fetched,
			FirstJobIDs: firstIDs,
		})
	}
	return queues, nil
}

// ServerInfo describes one registered server.
type ServerInfo struct {
	ServerID    string
	WorkerCount int
	Queues      []string
	StartedAt   time.Time
	Heartbeat   time.Time
}

// Servers lists every registered server, sorted by ID.
func (c *Client) Servers() ([]*ServerInfo, error) {
	conn := c.storage.GetConnection()

	serverIDs, err := conn.GetServers()
	if err != nil {
		return nil, err
	}
	sort.Strings(serverIDs)

	servers := make([]*ServerInfo, 0, len(serverIDs))
	for _, serverID := range serverIDs {
		fields, err := conn.GetAllEntriesFromHash("server:" + serverID)
		if err != nil {
			return nil, err
		}
		queues, err := conn.GetAllItemsFromList("server:" + serverID + ":queues")
		if err != nil {
			return nil, err
		}

		info := &ServerInfo{ServerID: serverID, Queues: queues}
		if fields != nil {
			if t, err := parseTime(fields["StartedAt"]); err == nil {
				info.StartedAt = t
			}
			if t, err := parseTime(fields["Heartbeat"]); err == nil {
				info.Heartbeat = t
			}
			info.WorkerCount, _ = strconv.Atoi(fields["WorkerCount"])
		}
		servers = append(servers, info)
	}
	return servers, nil
}

// JobDetails is the full read of one job: record, current state and
// history.
type JobDetails struct {
	JobID   string
	Job     *JobData
	State   *StateData
	History []map[string]string
}

// JobDetails reads everything about one job. Returns nil when the job does
// not exist.
func (c *Client) JobDetails(jobID string) (*JobDetails, error) {
	conn := c.storage.GetConnection()

	job, err := conn.GetJobData(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	state, err := conn.GetStateData(jobID)
	if err != nil {
		return nil, err
	}

	rawHistory, err := conn.GetAllItemsFromList("job:" + jobID + ":history")
	if err != nil {
		return nil, err
	}
	history := make([]map[string]string, 0, len(rawHistory))
	for _, raw := range rawHistory {
		entry, err := deserializeHistoryEntry(raw)
		if err != nil {
			continue
		}
		history = append(history, entry)
	}

	return &JobDetails{JobID: jobID, Job: job, State: state, History: history}, nil
}

// Statistics is the dashboard summary.
type Statistics struct {
	Queues     int64
	Servers    int64
	Scheduled  int64
	Processing int64
	Failed     int64
	Succeeded  int64
	Deleted    int64
	Recurring  int64
}

// Statistics reads the summary counts in one pass.
func (c *Client) Statistics() (*Statistics, error) {
	conn := c.storage.GetConnection()

	stats := &Statistics{}
	queues, err := conn.GetQueues()
	if err != nil {
		return nil, err
	}
	stats.Queues = int64(len(queues))

	serverIDs, err := conn.GetServers()
	if err != nil {
		return nil, err
	}
	stats.Servers = int64(len(serverIDs))

	if stats.Scheduled, err = conn.GetSetCount("schedule"); err != nil {
		return nil, err
	}
	if stats.Processing, err = conn.GetSetCount("processing"); err != nil {
		return nil, err
	}
	if stats.Failed, err = conn.GetSetCount("failed"); err != nil {
		return nil, err
	}
	if stats.Succeeded, err = conn.GetCounter("stats:succeeded"); err != nil {
		return nil, err
	}
	if stats.Deleted, err = conn.GetCounter("stats:deleted"); err != nil {
		return nil, err
	}
	if stats.Recurring, err = conn.GetSetCount("recurring-jobs"); err != nil {
		return nil, err
	}
	return stats, nil
}

// SucceededJobs pages through the succeeded list, newest first.
func (c *Client) SucceededJobs(from, count int) ([]string, error) {
	return c.storage.GetConnection().GetRangeFromList("succeeded", from, from+count-1)
}

// DeletedJobs pages through the deleted list, newest first.
func (c *Client) DeletedJobs(from, count int) ([]string, error) {
	return c.storage.GetConnection().GetRangeFromList("deleted", from, from+count-1)
}

// Package cassandra adapts the persistent regime's durable tables onto
// Cassandra via gocql: documents (RemoteDocumentCache), targets
// (TargetCache) and mutation_log (MutationQueue's append log).
package cassandra

import (
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// Config contains configuration for connecting to a Cassandra cluster and
// the keyspace backing the persistent regime's durable tables.
type Config struct {
	ClusterHosts      []string
	Keyspace          string
	Consistency       gocql.Consistency
	ConnectionTimeout time.Duration
	Authenticator     gocql.Authenticator
	ReplicationClause string

	ConsistencyBook ConsistencyBook
}

// ConsistencyBook enumerates per-table consistency levels.
type ConsistencyBook struct {
	DocumentsRead   gocql.Consistency
	DocumentsWrite  gocql.Consistency
	TargetsRead     gocql.Consistency
	TargetsWrite    gocql.Consistency
	MutationLogRead gocql.Consistency
	MutationLogLog  gocql.Consistency
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config
}

var connection *Connection
var mux sync.Mutex

// IsConnectionInstantiated reports whether a global Connection has been created.
func IsConnectionInstantiated() bool {
	return connection != nil
}

// OpenConnection returns the existing global Connection or opens a new one, creating
// the localstore keyspace and its three durable tables if they don't already exist.
func OpenConnection(config Config) (*Connection, error) {
	if connection != nil {
		return connection, nil
	}
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}
	if config.Keyspace == "" {
		config.Keyspace = "localstore"
	}
	if config.Consistency == gocql.Any {
		config.Consistency = gocql.LocalQuorum
	}
	if config.ReplicationClause == "" {
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}

	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		config.Authenticator = nil
	}

	c := Connection{Config: config}
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	if err := s.Query(fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;",
		config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		return nil, err
	}
	// documents: the durable RemoteDocumentCache table, keyed by the
	// document's resource path.
	if err := s.Query(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.documents (path text PRIMARY KEY, doc_type int, version bigint, fields blob);",
		config.Keyspace)).Exec(); err != nil {
		return nil, err
	}
	// targets: the durable TargetCache registry, keyed by target id.
	if err := s.Query(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.targets (target_id int PRIMARY KEY, canonical_id text, purpose int, sequence_number bigint, snapshot_version bigint, resume_token blob, active boolean);",
		config.Keyspace)).Exec(); err != nil {
		return nil, err
	}
	// mutation_log: the durable MutationQueue append log, keyed by user and batch id.
	if err := s.Query(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.mutation_log (user_id text, batch_id bigint, local_write_time bigint, payload blob, PRIMARY KEY(user_id, batch_id));",
		config.Keyspace)).Exec(); err != nil {
		return nil, err
	}

	c.Session = s
	connection = &c
	return connection, nil
}

// CloseConnection closes and clears the global connection, if it exists.
func CloseConnection() {
	if connection == nil {
		return
	}
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return
	}
	connection.Session.Close()
	connection = nil
}

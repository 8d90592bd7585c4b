package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/datastore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// NodeRepository defines domain-specific operations for nodes and their NICs
type NodeRepository interface {
	Repository[domain.Node, int64]
	FindByName(ctx context.Context, name string) (domain.Node, error)
	FindByAddHostSession(ctx context.Context, session string) ([]domain.Node, error)
	ExistsByName(ctx context.Context, name string) (bool, error)

	// SaveAll inserts every node, its NICs and tag links in a single transaction.
	// Either all nodes are persisted or none are.
	SaveAll(ctx context.Context, nodes []*domain.Node) error

	// DeleteAll removes the given nodes in a single transaction.
	DeleteAll(ctx context.Context, ids []int64) error

	// FindNamesLike returns node names matching a SQL LIKE pattern.
	FindNamesLike(ctx context.Context, pattern string) ([]string, error)

	// FindNicIPsByNetwork returns every IP assigned to a NIC on the network.
	FindNicIPsByNetwork(ctx context.Context, networkID int64) ([]string, error)

	// FindNicsByMAC returns every NIC carrying the given MAC address.
	FindNicsByMAC(ctx context.Context, mac string) ([]domain.Nic, error)
}

type nodeRepositoryImpl struct {
	ds    *datastore.Datastore
	cache *PreparedStatementCache
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(ds *datastore.Datastore) NodeRepository {
	return &nodeRepositoryImpl{
		ds:    ds,
		cache: NewPreparedStatementCache(ds.DB),
	}
}

const nodeColumns = "id, name, rack, add_host_session, hardware_profile_id, software_profile_id"

const (
	queryNamesLike     = "SELECT name FROM nodes WHERE name LIKE ? OR name LIKE ? ORDER BY name"
	queryNicIPsNetwork = "SELECT ip FROM nics WHERE network_id = ? AND ip IS NOT NULL"
)

func scanNode(row rowScanner) (domain.Node, error) {
	var n domain.Node
	var rack sql.NullInt64
	var session sql.NullString
	var sw sql.NullInt64
	err := row.Scan(&n.ID, &n.Name, &rack, &session, &n.HardwareProfileID, &sw)
	if rack.Valid {
		r := int(rack.Int64)
		n.Rack = &r
	}
	n.AddHostSession = session.String
	n.SoftwareProfileID = int64Ptr(sw)
	return n, err
}

// Save creates or updates a single node
func (r *nodeRepositoryImpl) Save(ctx context.Context, node domain.Node) (domain.Node, error) {
	err := r.ds.WithTx(ctx, func(tx *sql.Tx) error {
		if node.ID == 0 {
			return insertNode(ctx, tx, &node)
		}
		return updateNode(ctx, tx, &node)
	})
	if err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

// SaveAll persists a batch of new nodes atomically
func (r *nodeRepositoryImpl) SaveAll(ctx context.Context, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	err := r.ds.WithTx(ctx, func(tx *sql.Tx) error {
		for _, node := range nodes {
			if err := insertNode(ctx, tx, node); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// IDs assigned inside the rolled back transaction are meaningless
		for _, node := range nodes {
			node.ID = 0
			for i := range node.Nics {
				node.Nics[i].ID = 0
				node.Nics[i].NodeID = 0
			}
		}
	}
	return err
}

func validateNode(node *domain.Node) error {
	if node.Name == "" {
		return fmt.Errorf("node name is required: %w", ErrInvalidEntity)
	}
	if node.HardwareProfileID == 0 {
		return fmt.Errorf("node %q has no hardware profile: %w", node.Name, ErrInvalidEntity)
	}
	return nil
}

func insertNode(ctx context.Context, tx *sql.Tx, node *domain.Node) error {
	if err := validateNode(node); err != nil {
		return err
	}

	var rack sql.NullInt64
	if node.Rack != nil {
		rack = sql.NullInt64{Int64: int64(*node.Rack), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (name, rack, add_host_session, hardware_profile_id, software_profile_id)
		VALUES (?, ?, ?, ?, ?)`,
		node.Name, rack, nullString(node.AddHostSession), node.HardwareProfileID, nullInt64(node.SoftwareProfileID))
	if err != nil {
		return wrapWriteError(err, "failed to create node %q", node.Name)
	}
	if node.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get node ID: %w", err)
	}

	return insertRelations(ctx, tx, node)
}

func updateNode(ctx context.Context, tx *sql.Tx, node *domain.Node) error {
	if err := validateNode(node); err != nil {
		return err
	}

	var rack sql.NullInt64
	if node.Rack != nil {
		rack = sql.NullInt64{Int64: int64(*node.Rack), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE nodes
		SET name = ?, rack = ?, add_host_session = ?, hardware_profile_id = ?, software_profile_id = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		node.Name, rack, nullString(node.AddHostSession), node.HardwareProfileID, nullInt64(node.SoftwareProfileID), node.ID)
	if err != nil {
		return wrapWriteError(err, "failed to update node %q", node.Name)
	}

	for _, stmt := range []string{"DELETE FROM nics WHERE node_id = ?", "DELETE FROM node_tags WHERE node_id = ?"} {
		if _, err := tx.ExecContext(ctx, stmt, node.ID); err != nil {
			return fmt.Errorf("failed to clear relations of node %q: %w", node.Name, err)
		}
	}

	return insertRelations(ctx, tx, node)
}

func insertRelations(ctx context.Context, tx *sql.Tx, node *domain.Node) error {
	for i := range node.Nics {
		nic := &node.Nics[i]
		result, err := tx.ExecContext(ctx, `
			INSERT INTO nics (node_id, network_id, device, mac, ip, boot)
			VALUES (?, ?, ?, ?, ?, ?)`,
			node.ID, nullInt64(nic.NetworkID), nic.Device, nullString(nic.MAC), nullString(nic.IP), nic.Boot)
		if err != nil {
			return wrapWriteError(err, "failed to create NIC %q (mac %q, ip %q) of node %q", nic.Device, nic.MAC, nic.IP, node.Name)
		}
		if nic.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get NIC ID: %w", err)
		}
		nic.NodeID = node.ID
	}

	for _, tag := range node.Tags {
		if tag.ID == 0 {
			return fmt.Errorf("tag %q of node %q is not persisted: %w", tag.Key, node.Name, ErrInvalidEntity)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO node_tags (node_id, tag_id) VALUES (?, ?)", node.ID, tag.ID); err != nil {
			return wrapWriteError(err, "failed to tag node %q", node.Name)
		}
	}
	return nil
}

// FindByID finds a node by ID
func (r *nodeRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Node, error) {
	row := r.ds.DB.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)
	node, err := scanNode(row)
	if err != nil {
		return domain.Node{}, wrapReadError(err, "node with ID %d", id)
	}
	return node, r.loadRelations(ctx, &node)
}

// FindByName finds a node by name
func (r *nodeRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Node, error) {
	row := r.ds.DB.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE name = ?", name)
	node, err := scanNode(row)
	if err != nil {
		return domain.Node{}, wrapReadError(err, "node %q", name)
	}
	return node, r.loadRelations(ctx, &node)
}

// FindAll finds all nodes
func (r *nodeRepositoryImpl) FindAll(ctx context.Context) ([]domain.Node, error) {
	return r.findWhere(ctx, "1 = 1")
}

// FindByAddHostSession finds the nodes created by an add-host session
func (r *nodeRepositoryImpl) FindByAddHostSession(ctx context.Context, session string) ([]domain.Node, error) {
	return r.findWhere(ctx, "add_host_session = ?", session)
}

func (r *nodeRepositoryImpl) findWhere(ctx context.Context, where string, args ...any) ([]domain.Node, error) {
	rows, err := r.ds.DB.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE "+where+" ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes: %w", err)
	}

	var nodes []domain.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	for i := range nodes {
		if err := r.loadRelations(ctx, &nodes[i]); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (r *nodeRepositoryImpl) loadRelations(ctx context.Context, node *domain.Node) error {
	nics, err := r.findNics(ctx, "nics.node_id = ?", node.ID)
	if err != nil {
		return err
	}
	node.Nics = nics

	rows, err := r.ds.DB.QueryContext(ctx, `
		SELECT t.id, t.key, t.value
		FROM node_tags nt JOIN tags t ON t.id = nt.tag_id
		WHERE nt.node_id = ?
		ORDER BY t.key, t.value`, node.ID)
	if err != nil {
		return fmt.Errorf("failed to load tags of node %q: %w", node.Name, err)
	}
	defer rows.Close()

	node.Tags = nil
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Key, &tag.Value); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		node.Tags = append(node.Tags, tag)
	}
	return rows.Err()
}

func (r *nodeRepositoryImpl) findNics(ctx context.Context, where string, args ...any) ([]domain.Nic, error) {
	rows, err := r.ds.DB.QueryContext(ctx, `
		SELECT nics.id, nics.node_id, nics.device, nics.mac, nics.ip, nics.boot,
			n.id, n.name, n.address, n.netmask, n.start_ip, n.increment, n.using_dhcp, n.type
		FROM nics LEFT JOIN networks n ON n.id = nics.network_id
		WHERE `+where+`
		ORDER BY nics.node_id, nics.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find NICs: %w", err)
	}
	defer rows.Close()

	var nics []domain.Nic
	for rows.Next() {
		var nic domain.Nic
		var mac, ip sql.NullString
		var netID, increment sql.NullInt64
		var netName, address, netmask, startIP, netType sql.NullString
		var usingDHCP sql.NullBool
		if err := rows.Scan(&nic.ID, &nic.NodeID, &nic.Device, &mac, &ip, &nic.Boot,
			&netID, &netName, &address, &netmask, &startIP, &increment, &usingDHCP, &netType); err != nil {
			return nil, fmt.Errorf("failed to scan NIC: %w", err)
		}
		nic.MAC = mac.String
		nic.IP = ip.String
		if netID.Valid {
			nic.NetworkID = int64Ptr(netID)
			nic.Network = &domain.Network{
				ID:        netID.Int64,
				Name:      netName.String,
				Address:   address.String,
				Netmask:   netmask.String,
				StartIP:   startIP.String,
				Increment: int(increment.Int64),
				UsingDHCP: usingDHCP.Bool,
				Type:      netType.String,
			}
		}
		nics = append(nics, nic)
	}
	return nics, rows.Err()
}

// DeleteByID deletes a node and, through cascades, its NICs and tag links
func (r *nodeRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.ds.DB.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("node with ID %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAll deletes several nodes atomically
func (r *nodeRepositoryImpl) DeleteAll(ctx context.Context, ids []int64) error {
	return r.ds.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			result, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id)
			if err != nil {
				return fmt.Errorf("failed to delete node %d: %w", id, err)
			}
			if n, err := result.RowsAffected(); err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			} else if n == 0 {
				return fmt.Errorf("node with ID %d: %w", id, ErrNotFound)
			}
		}
		return nil
	})
}

// ExistsByID checks if a node exists by ID
func (r *nodeRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return existsBy(ctx, r.ds.DB, "SELECT COUNT(*) FROM nodes WHERE id = ?", id)
}

// ExistsByName checks if a node exists by name
func (r *nodeRepositoryImpl) ExistsByName(ctx context.Context, name string) (bool, error) {
	exists, err := existsBy(ctx, r.ds.DB, "SELECT COUNT(*) FROM nodes WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to check node existence: %w", err)
	}
	return exists, nil
}

// FindNamesLike returns persisted names matching pattern, either as a bare
// host name or as the host part of a fully qualified name.
func (r *nodeRepositoryImpl) FindNamesLike(ctx context.Context, pattern string) ([]string, error) {
	rows, err := r.cache.Query(ctx, queryNamesLike, pattern, pattern+".%")
	if err != nil {
		return nil, fmt.Errorf("failed to find node names like %q: %w", pattern, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan node name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// FindNicIPsByNetwork returns all assigned IPs on a network
func (r *nodeRepositoryImpl) FindNicIPsByNetwork(ctx context.Context, networkID int64) ([]string, error) {
	rows, err := r.cache.Query(ctx, queryNicIPsNetwork, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to find IPs on network %d: %w", networkID, err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan IP: %w", err)
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

// FindNicsByMAC returns NICs carrying mac
func (r *nodeRepositoryImpl) FindNicsByMAC(ctx context.Context, mac string) ([]domain.Nic, error) {
	return r.findNics(ctx, "nics.mac = ?", strings.ToLower(mac))
}

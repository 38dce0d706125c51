package storage

import (
	"context"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"
	"lifelockr/internal/otp"
	"lifelockr/internal/vault"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collPrincipals = "principals"
	collContacts   = "contacts"
	collLogs       = "logs"
	collItems      = "vault_items"

	appendAttempts = 5
)

type Mongo struct {
	client     *mongo.Client
	principals *mongo.Collection
	contacts   *mongo.Collection
	logs       *mongo.Collection
	items      *mongo.Collection
}

// OpenMongo connects, pings and ensures indexes.
func OpenMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongo ping")
	}

	db := cli.Database(dbName)
	m := &Mongo{
		client:     cli,
		principals: db.Collection(collPrincipals),
		contacts:   db.Collection(collContacts),
		logs:       db.Collection(collLogs),
		items:      db.Collection(collItems),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	idx := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.principals, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{m.contacts, mongo.IndexModel{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "contactUser", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{m.contacts, mongo.IndexModel{Keys: bson.D{{Key: "contactUser", Value: 1}, {Key: "canViewVault", Value: 1}}}},
		{m.logs, mongo.IndexModel{Keys: bson.D{{Key: "user", Value: 1}, {Key: "timestamp", Value: -1}}}},
		{m.logs, mongo.IndexModel{
			Keys:    bson.D{{Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{m.items, mongo.IndexModel{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}
	for _, ix := range idx {
		if _, err := ix.coll.Indexes().CreateOne(ctx, ix.model); err != nil {
			return errors.Wrapf(err, "create index on %s", ix.coll.Name())
		}
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// ---------- principals ----------

type principalDoc struct {
	ID         string    `bson:"_id"`
	Email      string    `bson:"email"`
	PassHash   string    `bson:"password"`
	Role       string    `bson:"role"`
	MFAEnabled bool      `bson:"mfaEnabled"`
	CreatedAt  time.Time `bson:"createdAt"`
	OTPHash    string    `bson:"otpHash,omitempty"`
	OTPExpires time.Time `bson:"otpExpires,omitempty"`
}

func (d principalDoc) principal() *auth.Principal {
	return &auth.Principal{
		ID:         d.ID,
		Email:      d.Email,
		PassHash:   d.PassHash,
		Role:       auth.Role(d.Role),
		MFAEnabled: d.MFAEnabled,
		CreatedAt:  d.CreatedAt,
	}
}

func (m *Mongo) CreatePrincipal(ctx context.Context, p auth.Principal) error {
	_, err := m.principals.InsertOne(ctx, principalDoc{
		ID:         p.ID,
		Email:      p.Email,
		PassHash:   p.PassHash,
		Role:       string(p.Role),
		MFAEnabled: p.MFAEnabled,
		CreatedAt:  p.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrEmailTaken
	}
	return errors.Wrap(err, "insert principal")
}

func (m *Mongo) findPrincipal(ctx context.Context, filter bson.M) (*auth.Principal, error) {
	var d principalDoc
	err := m.principals.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, auth.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find principal")
	}
	return d.principal(), nil
}

func (m *Mongo) PrincipalByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	return m.findPrincipal(ctx, bson.M{"email": email})
}

func (m *Mongo) PrincipalByID(ctx context.Context, id string) (*auth.Principal, error) {
	return m.findPrincipal(ctx, bson.M{"_id": id})
}

// ---------- OTP challenges (fields on the principal document) ----------

func (m *Mongo) SaveChallenge(ctx context.Context, principalID string, ch otp.Challenge) error {
	res, err := m.principals.UpdateByID(ctx, principalID, bson.M{
		"$set": bson.M{"otpHash": ch.Hash, "otpExpires": ch.Expires},
	})
	if err != nil {
		return errors.Wrap(err, "save otp challenge")
	}
	if res.MatchedCount == 0 {
		return auth.ErrPrincipalNotFound
	}
	return nil
}

func (m *Mongo) LoadChallenge(ctx context.Context, principalID string) (otp.Challenge, bool, error) {
	var d principalDoc
	err := m.principals.FindOne(ctx, bson.M{"_id": principalID},
		options.FindOne().SetProjection(bson.M{"otpHash": 1, "otpExpires": 1}),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return otp.Challenge{}, false, nil
	}
	if err != nil {
		return otp.Challenge{}, false, errors.Wrap(err, "load otp challenge")
	}
	if d.OTPHash == "" {
		return otp.Challenge{}, false, nil
	}
	return otp.Challenge{Hash: d.OTPHash, Expires: d.OTPExpires}, true, nil
}

// ClearChallenge matches on the hash so only one of several concurrent
// verifications of the same challenge observes a modification.
func (m *Mongo) ClearChallenge(ctx context.Context, principalID, hash string) (bool, error) {
	res, err := m.principals.UpdateOne(ctx,
		bson.M{"_id": principalID, "otpHash": hash},
		bson.M{"$unset": bson.M{"otpHash": "", "otpExpires": ""}},
	)
	if err != nil {
		return false, errors.Wrap(err, "clear otp challenge")
	}
	return res.ModifiedCount == 1, nil
}

// ---------- delegation grants ----------

type grantDoc struct {
	ID           string    `bson:"_id"`
	OwnerID      string    `bson:"owner"`
	ContactID    string    `bson:"contactUser"`
	ContactEmail string    `bson:"contactEmail"`
	CanViewVault bool      `bson:"canViewVault"`
	AccessLevel  string    `bson:"accessLevel"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d grantDoc) grant() delegation.Grant {
	return delegation.Grant{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		ContactID:    d.ContactID,
		ContactEmail: d.ContactEmail,
		CanViewVault: d.CanViewVault,
		AccessLevel:  delegation.AccessLevel(d.AccessLevel),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (m *Mongo) UpsertGrant(ctx context.Context, g delegation.Grant) (*delegation.Grant, error) {
	var d grantDoc
	err := m.contacts.FindOneAndUpdate(ctx,
		bson.M{"owner": g.OwnerID, "contactUser": g.ContactID},
		bson.M{
			"$set": bson.M{
				"contactEmail": g.ContactEmail,
				"canViewVault": g.CanViewVault,
				"accessLevel":  string(g.AccessLevel),
				"updatedAt":    g.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"_id":       g.ID,
				"createdAt": g.CreatedAt,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		return nil, errors.Wrap(err, "upsert grant")
	}
	out := d.grant()
	return &out, nil
}

func (m *Mongo) FindGrant(ctx context.Context, ownerID, contactID string) (*delegation.Grant, error) {
	var d grantDoc
	err := m.contacts.FindOne(ctx, bson.M{"owner": ownerID, "contactUser": contactID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, delegation.ErrGrantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find grant")
	}
	g := d.grant()
	return &g, nil
}

func (m *Mongo) SetCanViewVault(ctx context.Context, ownerID, contactID string, allowed bool, at time.Time) error {
	res, err := m.contacts.UpdateOne(ctx,
		bson.M{"owner": ownerID, "contactUser": contactID},
		bson.M{"$set": bson.M{"canViewVault": allowed, "updatedAt": at}},
	)
	if err != nil {
		return errors.Wrap(err, "update grant")
	}
	if res.MatchedCount == 0 {
		return delegation.ErrGrantNotFound
	}
	return nil
}

func (m *Mongo) DeleteGrant(ctx context.Context, ownerID, grantID string) error {
	res, err := m.contacts.DeleteOne(ctx, bson.M{"_id": grantID, "owner": ownerID})
	if err != nil {
		return errors.Wrap(err, "delete grant")
	}
	if res.DeletedCount == 0 {
		return delegation.ErrGrantNotFound
	}
	return nil
}

func (m *Mongo) ListGrants(ctx context.Context, ownerID string) ([]delegation.Grant, error) {
	cur, err := m.contacts.Find(ctx, bson.M{"owner": ownerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list grants")
	}
	defer cur.Close(ctx)

	out := []delegation.Grant{}
	for cur.Next(ctx) {
		var d grantDoc
		if err := cur.Decode(&d); err != nil {
			return nil, errors.Wrap(err, "decode grant")
		}
		out = append(out, d.grant())
	}
	return out, errors.Wrap(cur.Err(), "list grants")
}

func (m *Mongo) GrantorsFor(ctx context.Context, contactID string) ([]string, error) {
	cur, err := m.contacts.Find(ctx, bson.M{"contactUser": contactID, "canViewVault": true},
		options.Find().SetProjection(bson.M{"owner": 1}))
	if err != nil {
		return nil, errors.Wrap(err, "find grantors")
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var d grantDoc
		if err := cur.Decode(&d); err != nil {
			return nil, errors.Wrap(err, "decode grantor")
		}
		out = append(out, d.OwnerID)
	}
	return out, errors.Wrap(cur.Err(), "find grantors")
}

// ---------- vault items ----------

func (m *Mongo) InsertItem(ctx context.Context, r vault.Record) error {
	_, err := m.items.InsertOne(ctx, r)
	return errors.Wrap(err, "insert item")
}

func (m *Mongo) ItemByID(ctx context.Context, id string) (*vault.Record, error) {
	var r vault.Record
	err := m.items.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, vault.ErrItemNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find item")
	}
	return &r, nil
}

func (m *Mongo) ListItems(ctx context.Context, ownerIDs []string) ([]vault.Record, error) {
	cur, err := m.items.Find(ctx, bson.M{"owner": bson.M{"$in": ownerIDs}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	defer cur.Close(ctx)

	var out []vault.Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode items")
	}
	return out, nil
}

func (m *Mongo) ReplaceItem(ctx context.Context, r vault.Record) error {
	res, err := m.items.ReplaceOne(ctx, bson.M{"_id": r.ID, "owner": r.OwnerID}, r)
	if err != nil {
		return errors.Wrap(err, "replace item")
	}
	if res.MatchedCount == 0 {
		return vault.ErrItemNotFound
	}
	return nil
}

func (m *Mongo) DeleteItem(ctx context.Context, ownerID, id string) error {
	res, err := m.items.DeleteOne(ctx, bson.M{"_id": id, "owner": ownerID})
	if err != nil {
		return errors.Wrap(err, "delete item")
	}
	if res.DeletedCount == 0 {
		return vault.ErrItemNotFound
	}
	return nil
}

// ---------- activity log ----------

// AppendEntry links e to the current head of the log. The unique seq index
// makes concurrent writers race on the insert; the loser re-reads the head.
func (m *Mongo) AppendEntry(ctx context.Context, e audit.Entry) error {
	for attempt := 0; attempt < appendAttempts; attempt++ {
		var head audit.Entry
		err := m.logs.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})).Decode(&head)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return errors.Wrap(err, "load log head")
		}
		linked, err := audit.Link(head, e)
		if err != nil {
			return err
		}
		linked.ID = uuid.NewString()
		_, err = m.logs.InsertOne(ctx, linked)
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		return errors.Wrap(err, "append log entry")
	}
	return errors.New("append log entry: sequence contention")
}

// Verify replays the whole log in sequence order.
func (m *Mongo) Verify(ctx context.Context) error {
	cur, err := m.logs.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return errors.Wrap(err, "scan log entries")
	}
	defer cur.Close(ctx)

	var v audit.ChainVerifier
	for cur.Next(ctx) {
		var e audit.Entry
		if err := cur.Decode(&e); err != nil {
			return errors.Wrap(err, "decode log entry")
		}
		if err := v.Check(e); err != nil {
			return errors.Wrapf(err, "at seq %d", e.Seq)
		}
	}
	return errors.Wrap(cur.Err(), "scan log entries")
}

func (m *Mongo) ListEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user"] = f.UserID
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := m.logs.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list log entries")
	}
	defer cur.Close(ctx)

	out := []audit.Entry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode log entries")
	}
	return out, nil
}

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const userColumns = `
OPTIONAL MATCH (u)-[:IS_A]->(r)
RETURN u, toLower(head(labels(r))) AS role, r.id AS roleId`

const (
	createUserQuery = `
CREATE (u:User)
SET u = $props
RETURN u.id AS id`

	createBuyerQuery = `
MATCH (u:User {id: $userId})
CREATE (u)-[:IS_A]->(:Buyer {id: $roleId})`

	createSellerQuery = `
MATCH (u:User {id: $userId})
CREATE (u)-[:IS_A]->(s:Seller {id: $roleId, verified: false, subscribers: 0})
CREATE (s)-[:HAS_A]->(:Wallet {id: $walletId, balance: 0, updatedAt: $createdAt})`

	createPlansQuery = `
MATCH (s:Seller {id: $sellerId})
UNWIND $plans AS plan
CREATE (s)-[:HAS_A]->(p:Plan)
SET p = plan`

	findUserByIDQuery    = `MATCH (u:User {id: $id})` + userColumns
	findUserByEmailQuery = `MATCH (u:User {email: $email})` + userColumns

	emailExistsQuery = `
RETURN EXISTS { MATCH (:User {email: $email}) } AS taken`

	updateUserQuery = `
MATCH (u:User {id: $id})
SET u += $changes
RETURN u.id AS id`

	// Property names are fixed by the callers below, never user input.
	setUserPropQuery = `
MATCH (u:User {id: $id})
SET u.%s = $value
RETURN u.id AS id`

	addDeviceTokenQuery = `
MATCH (u:User {id: $userId})
MERGE (u)-[:HAS_A]->(d:DeviceToken {token: $token})
ON CREATE SET d.createdAt = $createdAt
SET d.platform = $platform
RETURN d.token AS token`

	deviceTokensQuery = `
MATCH (:User {id: $userId})-[:HAS_A]->(d:DeviceToken)
RETURN d
ORDER BY d.createdAt`
)

type Neo4jUserRepository struct {
	runner graphdb.DBRunner
}

func NewUserRepository(runner graphdb.DBRunner) *Neo4jUserRepository {
	return &Neo4jUserRepository{runner: runner}
}

// CreateAccount writes the user, its role node and, for sellers, the wallet
// and subscription plans in one transaction.
func (r *Neo4jUserRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	u := account.User
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	return r.runner.WriteTx(ctx, func(ctx context.Context, tx graphdb.Tx) error {
		if _, err := tx.Run(ctx, createUserQuery, map[string]interface{}{"props": userProps(u)}); err != nil {
			return err
		}

		params := map[string]interface{}{
			"userId":    u.ID,
			"roleId":    account.RoleID,
			"walletId":  account.WalletID,
			"createdAt": u.CreatedAt,
		}
		switch account.Role {
		case models.RoleBuyer:
			_, err := tx.Run(ctx, createBuyerQuery, params)
			return err
		case models.RoleSeller:
			if _, err := tx.Run(ctx, createSellerQuery, params); err != nil {
				return err
			}
			if len(account.Plans) == 0 {
				return nil
			}
			_, err := tx.Run(ctx, createPlansQuery, map[string]interface{}{
				"sellerId": account.RoleID,
				"plans":    planRows(account.Plans),
			})
			return err
		default:
			return fmt.Errorf("unknown role %q", account.Role)
		}
	})
}

func (r *Neo4jUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, findUserByIDQuery, map[string]interface{}{"id": id})
}

func (r *Neo4jUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, findUserByEmailQuery, map[string]interface{}{"email": strings.ToLower(email)})
}

func (r *Neo4jUserRepository) findOne(ctx context.Context, query string, params map[string]interface{}) (*models.User, error) {
	res, err := r.runner.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	rec, err := graphdb.Single(res)
	if err != nil {
		return nil, err
	}
	return scanUser(rec)
}

func (r *Neo4jUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	res, err := r.runner.Read(ctx, emailExistsQuery, map[string]interface{}{"email": strings.ToLower(email)})
	if err != nil {
		return false, err
	}
	return graphdb.Value[bool](res, "taken")
}

func (r *Neo4jUserRepository) Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	changes := map[string]interface{}{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.UserName != nil {
		changes["userName"] = *update.UserName
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}
	if len(changes) > 0 {
		err := requireRow(r.runner.Write(ctx, updateUserQuery, map[string]interface{}{"id": id, "changes": changes}))
		if err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, id)
}

func (r *Neo4jUserRepository) SetAvatar(ctx context.Context, id, url string) error {
	return r.setProp(ctx, id, "avatar", url)
}

func (r *Neo4jUserRepository) SetPassword(ctx context.Context, id, hash string) error {
	return r.setProp(ctx, id, "password", hash)
}

func (r *Neo4jUserRepository) Confirm(ctx context.Context, id string) error {
	return r.setProp(ctx, id, "confirmed", true)
}

func (r *Neo4jUserRepository) Deactivate(ctx context.Context, id string) error {
	return r.setProp(ctx, id, "deactivated", true)
}

func (r *Neo4jUserRepository) setProp(ctx context.Context, id, prop string, value interface{}) error {
	return requireRow(r.runner.Write(ctx, fmt.Sprintf(setUserPropQuery, prop), map[string]interface{}{
		"id":    id,
		"value": value,
	}))
}

func (r *Neo4jUserRepository) AddDeviceToken(ctx context.Context, userID string, token models.DeviceToken) error {
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	return requireRow(r.runner.Write(ctx, addDeviceTokenQuery, map[string]interface{}{
		"userId":    userID,
		"token":     token.Token,
		"platform":  token.Platform,
		"createdAt": createdAt,
	}))
}

func (r *Neo4jUserRepository) DeviceTokens(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	res, err := r.runner.Read(ctx, deviceTokensQuery, map[string]interface{}{"userId": userID})
	if err != nil {
		return nil, err
	}
	return graphdb.ScanAll[models.DeviceToken](res, "d")
}

func scanUser(rec *neo4j.Record) (*models.User, error) {
	props, err := graphdb.RecordValue[map[string]interface{}](rec, "u")
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := graphdb.Decode(props, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.Role, err = graphdb.RecordValue[string](rec, "role"); err != nil {
		return nil, err
	}
	if u.RoleID, err = graphdb.RecordValue[string](rec, "roleId"); err != nil {
		return nil, err
	}
	return &u, nil
}

func userProps(u models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":          u.ID,
		"name":        u.Name,
		"userName":    u.UserName,
		"email":       strings.ToLower(u.Email),
		"password":    u.Password,
		"avatar":      u.Avatar,
		"bio":         u.Bio,
		"confirmed":   u.Confirmed,
		"deactivated": u.Deactivated,
		"customerId":  u.CustomerID,
		"createdAt":   u.CreatedAt,
	}
}

func planRows(plans []models.Plan) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(plans))
	for i, p := range plans {
		rows[i] = planProps(p)
	}
	return rows
}

func planProps(p models.Plan) map[string]interface{} {
	return map[string]interface{}{
		"id":      p.ID,
		"name":    p.Name,
		"price":   p.Price,
		"period":  p.Period,
		"priceId": p.PriceID,
	}
}

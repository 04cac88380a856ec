package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/businessunit"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
	"github.com/ubiportal/ubiportal/pkg/storage"
)

var errNoUser = errors.New("no portal user configured: set user.name or pass --user")

func newAPIClient(cmd *cobra.Command) (*portalapi.Client, error) {
	proxy, _ := cmd.Flags().GetString("proxy")
	return portalapi.New(portalapi.Config{
		BaseURL:  viper.GetString("api.url"),
		AppID:    viper.GetString("api.appid"),
		Token:    viper.GetString("api.token"),
		Proxy:    proxy,
		Timeout:  time.Duration(viper.GetInt("api.timeout")) * time.Second,
		RetryMax: viper.GetInt("api.retries"),
	})
}

func configuredSession() (businessunit.Session, error) {
	name := viper.GetString("user.name")
	if name == "" {
		return businessunit.Session{}, errNoUser
	}
	return businessunit.Session{User: &businessunit.User{
		Name:       name,
		Unit:       viper.GetString("user.unit"),
		MasterUser: viper.GetBool("user.master"),
		Token:      viper.GetString("api.token"),
	}}, nil
}

// openDB opens the portal database. With write set, it also takes the
// database lock, waiting up to db.lock_wait seconds for another writer; the
// returned func releases both.
func openDB(write bool) (*storage.DB, func(), error) {
	path, err := utils.GetAbsDBPath(viper.GetString("db.path"))
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !write {
		return db, func() { db.Close() }, nil
	}

	lock, err := utils.NewDBLock(path)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(viper.GetInt("db.lock_wait"))*time.Second)
	defer cancel()
	if err := lock.Lock(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() {
		if err := lock.Unlock(); err != nil {
			utils.Log.Warn(err)
		}
		db.Close()
	}, nil
}

// portalUser bundles what a command needs to act as the configured user.
type portalUser struct {
	session businessunit.Session
	store   *storage.UserStore
	units   *businessunit.Context
	api     *portalapi.Client
}

// loadUser builds the user's business unit context. The unit list is only
// fetched when withUnits is set.
func loadUser(ctx context.Context, cmd *cobra.Command, db *storage.DB, withUnits bool) (*portalUser, error) {
	session, err := configuredSession()
	if err != nil {
		return nil, err
	}
	api, err := newAPIClient(cmd)
	if err != nil {
		return nil, err
	}
	store := db.Scoped(session.User.Name)
	units := businessunit.NewContext(store)
	if withUnits {
		if err := units.Load(ctx, api); err != nil {
			return nil, (&portalUser{api: api}).signOutOnUnauthorized(ctx, err)
		}
	} else if err := units.Dispatch(businessunit.Action{Type: businessunit.UpdateLoading, Loading: false}); err != nil {
		return nil, err
	}
	return &portalUser{session: session, store: store, units: units, api: api}, nil
}

// signOutOnUnauthorized ends the backend session when err says it has expired.
func (u *portalUser) signOutOnUnauthorized(ctx context.Context, err error) error {
	if errors.Is(err, portalapi.ErrUnauthorized) {
		if serr := u.api.SignOut(ctx); serr != nil {
			utils.Log.Warnf("Sign out failed: %v", serr)
		}
		return errors.New("the portal session has expired, update api.token and try again")
	}
	return err
}

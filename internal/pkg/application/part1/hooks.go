package part1

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/52north/connected-systems-go/internal/pkg/infrastructure/storage/docstore"
	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

// createHook runs before a document is persisted. Any error aborts the
// create with no write.
type createHook func(ctx context.Context, index string, doc *types.Document) error

// duplicateGuard rejects creates whose id or uid is already taken.
func (p *metadataProvider) duplicateGuard(ctx context.Context, index string, doc *types.Document) error {
	if doc.ID != "" {
		exists, err := p.store.Exists(ctx, index, docstore.NewQuery().Terms("_id", []string{doc.ID}))
		if err != nil {
			return err
		}
		if exists {
			return cserrors.NewAlreadyExistsError(fmt.Sprintf("an entity with id %s already exists", doc.ID))
		}
	}

	if doc.UID != "" {
		exists, err := p.store.Exists(ctx, index, docstore.NewQuery().Terms("uid", []string{doc.UID}))
		if err != nil {
			return err
		}
		if exists {
			return cserrors.NewAlreadyExistsError(fmt.Sprintf("an entity with uid %s already exists", doc.UID))
		}
	}

	return nil
}

// linkProcedure resolves a system's typeOf reference. A urn reference
// is looked up by uid among the procedures and the href is rewritten
// to the canonical location; an unresolvable reference rejects the
// create.
func (p *metadataProvider) linkProcedure(ctx context.Context, _ string, doc *types.Document) error {
	if doc.SML == nil {
		return nil
	}

	typeOf, ok := doc.SML["typeOf"].(map[string]any)
	if !ok {
		return nil
	}

	href, ok := typeOf["href"].(string)
	if !ok || strings.HasPrefix(href, "http") {
		return nil
	}

	ids, err := p.store.IDs(ctx, indexProcedures, docstore.NewQuery().Terms("uid", []string{href}), 1)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return cserrors.NewInvalidQueryError(fmt.Sprintf("typeOf reference %s cannot be resolved", href))
	}

	typeOf["uid"] = href
	typeOf["href"] = fmt.Sprintf("%s/procedures/%s", p.baseURL, ids[0])

	return nil
}

// checkParent requires the referenced parent system to exist.
func (p *metadataProvider) checkParent(ctx context.Context, _ string, doc *types.Document) error {
	if doc.Parent == "" {
		return nil
	}

	exists, err := p.store.Exists(ctx, indexSystems, docstore.NewQuery().Terms("_id", []string{doc.Parent}))
	if err != nil {
		return err
	}

	if !exists {
		return cserrors.NewInvalidQueryError(fmt.Sprintf("parent system %s does not exist", doc.Parent))
	}

	return nil
}

// linkSystems resolves a deployment's deployedSystems references and
// records the resolved ids for reverse lookups. Urn references resolve
// by uid; http references keep their trailing path segment as the id
// after an existence check.
func (p *metadataProvider) linkSystems(ctx context.Context, _ string, doc *types.Document) error {
	if doc.SML == nil {
		return nil
	}

	deployed, ok := doc.SML["deployedSystems"].([]any)
	if !ok {
		return nil
	}

	for _, entry := range deployed {
		member, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		system, ok := member["system"].(map[string]any)
		if !ok {
			continue
		}

		href, ok := system["href"].(string)
		if !ok || href == "" {
			continue
		}

		var systemID string

		if strings.HasPrefix(href, "http") {
			systemID = path.Base(href)

			exists, err := p.store.Exists(ctx, indexSystems, docstore.NewQuery().Terms("_id", []string{systemID}))
			if err != nil {
				return err
			}
			if !exists {
				return cserrors.NewInvalidQueryError(fmt.Sprintf("deployed system %s does not exist", systemID))
			}
		} else {
			ids, err := p.store.IDs(ctx, indexSystems, docstore.NewQuery().Terms("uid", []string{href}), 1)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return cserrors.NewInvalidQueryError(fmt.Sprintf("deployed system reference %s cannot be resolved", href))
			}

			systemID = ids[0]
			system["uid"] = href
		}

		system["href"] = fmt.Sprintf("%s/systems/%s", p.baseURL, systemID)
		doc.LinkedSystemIDs = append(doc.LinkedSystemIDs, systemID)
	}

	return nil
}
